// Package photostore keeps the photos behind accepted attendance captures.
package photostore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"beaconattend/internal/attendance"
)

// Uploader sends one data URL photo to remote storage.
type Uploader interface {
	UploadDataURL(ctx context.Context, folder, publicID, dataURL string) (*Upload, error)
}

// Store implements attendance.PhotoStore. Without an uploader photos stay
// inline on the record as data URLs.
type Store struct {
	uploader Uploader
	folder   string
	logger   *zap.Logger
}

// New returns a photo store uploading under root/<stage>. uploader may be nil.
func New(uploader Uploader, root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{uploader: uploader, folder: root, logger: logger}
}

// Remote reports whether photos leave the process.
func (s *Store) Remote() bool { return s.uploader != nil }

// Save stores one capture photo and returns the reference for the record.
func (s *Store) Save(ctx context.Context, stage attendance.BeaconType, classID, studentID, dataURL string) (string, error) {
	if !strings.HasPrefix(dataURL, "data:image/") {
		return "", fmt.Errorf("photo is not an image data URL")
	}
	if s.uploader == nil {
		return dataURL, nil
	}

	folder := path.Join(s.folder, strings.ToLower(string(stage)))
	up, err := s.uploader.UploadDataURL(ctx, folder, classID+"_"+studentID, dataURL)
	if err != nil {
		return "", err
	}
	s.logger.Debug("photo uploaded",
		zap.String("stage", string(stage)),
		zap.String("public_id", up.PublicID),
		zap.Int("bytes", up.Bytes))
	return up.SecureURL, nil
}
