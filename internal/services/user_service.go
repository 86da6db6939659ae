package services

import (
	"context"
	"errors"
	"strings"

	"github.com/clientcomm/core/internal/database/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates the user was not found
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists indicates the email is already taken
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidCredentials indicates invalid login credentials
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordTooShort indicates the password is too short
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// CreateUserInput describes a new caseworker
type CreateUserInput struct {
	Email          string
	Password       string
	FullName       string
	PhoneNumber    string
	DepartmentID   *uint
	EmailSubscribe bool
}

// UserService handles caseworker accounts
type UserService struct {
	db         *gorm.DB
	normalizer NumberNormalizer
}

// NewUserService creates a new UserService instance. normalizer may be nil,
// in which case phone numbers are stored as given.
func NewUserService(db *gorm.DB, normalizer NumberNormalizer) *UserService {
	return &UserService{
		db:         db,
		normalizer: normalizer,
	}
}

// CreateUser creates a caseworker with a hashed password
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if len(in.Password) < 6 {
		return nil, ErrPasswordTooShort
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, &ValidationError{Field: "email", Message: "can't be blank"}
	}

	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrUserAlreadyExists
	}

	phone := strings.TrimSpace(in.PhoneNumber)
	if phone != "" && s.normalizer != nil {
		normalized, err := s.normalizer.NormalizeNumber(ctx, phone)
		if err != nil {
			return nil, &ValidationError{Field: "phone_number", Message: "is not a valid phone number", Err: err}
		}
		phone = normalized
	}

	if in.DepartmentID != nil {
		var dept models.Department
		if err := s.db.WithContext(ctx).First(&dept, *in.DepartmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrDepartmentNotFound
			}
			return nil, err
		}
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:          email,
		PasswordHash:   hashed,
		FullName:       strings.TrimSpace(in.FullName),
		PhoneNumber:    phone,
		DepartmentID:   in.DepartmentID,
		Active:         true,
		EmailSubscribe: in.EmailSubscribe,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(id uint) (*models.User, error) {
	var found models.User
	if err := s.db.Preload("Department").First(&found, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &found, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(email string) (*models.User, error) {
	var found models.User
	err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&found).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &found, nil
}

// ListUsers returns all users, optionally limited to one department
func (s *UserService) ListUsers(departmentID *uint) ([]models.User, error) {
	var users []models.User
	query := s.db.Order("id")
	if departmentID != nil {
		query = query.Where("department_id = ?", *departmentID)
	}
	if err := query.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SetActive enables or disables a caseworker's login
func (s *UserService) SetActive(id uint, active bool) error {
	result := s.db.Model(&models.User{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RefreshUnread recomputes a caseworker's unread flag from their conversations
func (s *UserService) RefreshUnread(ctx context.Context, id uint) error {
	return refreshUserUnread(s.db.WithContext(ctx), id)
}

// VerifyPassword verifies an active user's password
func (s *UserService) VerifyPassword(email, password string) (*models.User, error) {
	found, err := s.GetUserByEmail(email)
	if err != nil || !found.Active {
		return nil, ErrInvalidCredentials
	}

	if !ComparePassword(found.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return found, nil
}

// ResetPassword resets a user's password (admin operation)
func (s *UserService) ResetPassword(id uint, newPassword string) error {
	if len(newPassword) < 6 {
		return ErrPasswordTooShort
	}

	found, err := s.GetUserByID(id)
	if err != nil {
		return err
	}

	hashed, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.Model(found).Update("password_hash", hashed).Error
}

// ChangePassword replaces the password after checking the current one
func (s *UserService) ChangePassword(id uint, oldPassword, newPassword string) error {
	found, err := s.GetUserByID(id)
	if err != nil {
		return err
	}
	if !ComparePassword(found.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	return s.ResetPassword(id, newPassword)
}

// SetEmailSubscribe toggles email copies of inbound messages
func (s *UserService) SetEmailSubscribe(id uint, subscribe bool) (*models.User, error) {
	found, err := s.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(found).Update("email_subscribe", subscribe).Error; err != nil {
		return nil, err
	}
	found.EmailSubscribe = subscribe
	return found, nil
}

// IsPasswordHashed checks if a string looks like a bcrypt hash
func IsPasswordHashed(password string) bool {
	// bcrypt hashes start with $2a$, $2b$, or $2y$
	if len(password) < 4 {
		return false
	}
	return password[:4] == "$2a$" || password[:4] == "$2b$" || password[:4] == "$2y$"
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// ComparePassword compares a password with a hash
func ComparePassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}
