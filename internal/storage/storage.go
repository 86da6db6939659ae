package storage

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var (
	// ErrFileNotFound indicates the requested file was not found
	ErrFileNotFound = errors.New("file not found")
	// ErrFileWriteFailed indicates file write operation failed
	ErrFileWriteFailed = errors.New("failed to write file")
	// ErrFileReadFailed indicates file read operation failed
	ErrFileReadFailed = errors.New("failed to read file")
)

// Storage saves inbound message media to disk
type Storage struct {
	manager *Manager
}

// NewStorage creates a new media Storage
func NewStorage(manager *Manager) *Storage {
	return &Storage{manager: manager}
}

// SaveMedia writes one media item for a message and returns its path
func (s *Storage) SaveMedia(messageID uint, contentType string, content []byte) (string, error) {
	dir, err := s.manager.CreateMessageDir(messageID)
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(dir, uuid.NewString()+extensionFor(contentType))
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileWriteFailed, err.Error())
	}
	return filePath, nil
}

// GetMedia reads a stored media item
func (s *Storage) GetMedia(messageID uint, path string) ([]byte, error) {
	if err := s.manager.ValidatePathBelongsToMessage(messageID, path); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileReadFailed, err.Error())
	}
	return content, nil
}

// DeleteMedia removes all media stored for a message
func (s *Storage) DeleteMedia(messageID uint) error {
	return s.manager.DeleteMessageMedia(messageID)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
