// Package storage keeps the original uploaded documents. Sibling activity
// records produced from one document share a single object.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

// BlobStore is where uploaded document bytes live.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is idempotent; a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds "<student>/<unix-ms>_<uuid>.<ext>" for a new upload.
func ObjectKey(studentID uuid.UUID, fileName string, now time.Time) string {
	ext := constants.NormalizeExt(path.Ext(fileName))
	name := fmt.Sprintf("%d_%s", now.UnixMilli(), uuid.NewString())
	if ext != "" {
		name += "." + ext
	}
	return studentID.String() + "/" + name
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (BlobStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs":
		return NewFSStore(cfg.Dir, logger)
	case "gcs":
		return NewGCSStore(ctx, cfg, logger)
	default:
		return nil, common.NewAppError("CONFIG_ERROR", "unknown storage backend "+cfg.Backend, common.ErrInvalidInput)
	}
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return common.NewAppError("INVALID_INPUT", "잘못된 저장 경로입니다.", common.ErrInvalidInput)
	}
	return nil
}
