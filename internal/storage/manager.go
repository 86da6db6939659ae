package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidMessageID indicates an invalid message ID was provided
	ErrInvalidMessageID = errors.New("invalid message ID")
	// ErrAccessDenied indicates a path outside the message's directory
	ErrAccessDenied = errors.New("access to media denied")
	// ErrDirectoryCreationFailed indicates directory creation failed
	ErrDirectoryCreationFailed = errors.New("failed to create directory")
)

// Manager lays out per-message media directories under a base directory
type Manager struct {
	baseDir string
}

// NewManager creates a new media directory Manager
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// GetMessageDir returns the media directory for a message
func (m *Manager) GetMessageDir(messageID uint) (string, error) {
	if messageID == 0 {
		return "", ErrInvalidMessageID
	}
	return filepath.Join(m.baseDir, fmt.Sprintf("%d", messageID)), nil
}

// CreateMessageDir creates the media directory for a message
func (m *Manager) CreateMessageDir(messageID uint) (string, error) {
	dir, err := m.GetMessageDir(messageID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %s", ErrDirectoryCreationFailed, err.Error())
	}
	return dir, nil
}

// ValidatePathBelongsToMessage rejects paths that escape the message's directory
func (m *Manager) ValidatePathBelongsToMessage(messageID uint, path string) error {
	dir, err := m.GetMessageDir(messageID)
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return ErrAccessDenied
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return ErrAccessDenied
	}

	if !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
		return ErrAccessDenied
	}
	return nil
}

// DeleteMessageMedia removes everything stored for a message
func (m *Manager) DeleteMessageMedia(messageID uint) error {
	dir, err := m.GetMessageDir(messageID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
