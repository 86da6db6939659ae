package services

import (
	"errors"
	"strings"

	"github.com/clientcomm/core/internal/database/models"
	"gorm.io/gorm"
)

// DepartmentService manages departments and their unclaimed users
type DepartmentService struct {
	db *gorm.DB
}

// NewDepartmentService creates a new DepartmentService
func NewDepartmentService(db *gorm.DB) *DepartmentService {
	return &DepartmentService{db: db}
}

// Create adds a department answering on phoneNumber
func (s *DepartmentService) Create(name, phoneNumber, unclaimedResponse string) (*models.Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "can't be blank"}
	}
	dept := &models.Department{
		Name:              name,
		PhoneNumber:       strings.TrimSpace(phoneNumber),
		UnclaimedResponse: unclaimedResponse,
	}
	if err := s.db.Create(dept).Error; err != nil {
		return nil, err
	}
	return dept, nil
}

// List returns all departments
func (s *DepartmentService) List() ([]models.Department, error) {
	var depts []models.Department
	err := s.db.Order("id").Find(&depts).Error
	return depts, err
}

// SetUnclaimedUser makes userID the department's fallback for unowned clients.
// The user must belong to the department.
func (s *DepartmentService) SetUnclaimedUser(departmentID, userID uint) error {
	var dept models.Department
	if err := s.db.First(&dept, departmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDepartmentNotFound
		}
		return err
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.DepartmentID == nil || *user.DepartmentID != dept.ID {
		return &ValidationError{Field: "user_id", Message: "user is not in this department"}
	}
	return s.db.Model(&dept).Update("unclaimed_user_id", userID).Error
}
