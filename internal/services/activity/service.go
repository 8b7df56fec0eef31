// Package activity manages stored activity records after analysis: listing,
// manual corrections and deletion of records and their source documents.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/storage"
)

// Record is a FileRecord with its analysis; Analysis is nil only if the pair is broken.
type Record struct {
	File     *entity.UploadedFile `json:"file"`
	Analysis *entity.FileAnalysis `json:"analysis"`
}

type Service struct {
	students repository.StudentRepository
	files    repository.FileRepository
	analyses repository.AnalysisRepository
	blobs    storage.BlobStore
	logger   *slog.Logger
}

func NewService(
	students repository.StudentRepository,
	files repository.FileRepository,
	analyses repository.AnalysisRepository,
	blobs storage.BlobStore,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{students: students, files: files, analyses: analyses, blobs: blobs, logger: logger}
}

func (s *Service) authorizeStudent(ctx context.Context, consultantID, studentID uuid.UUID) error {
	st, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return err
	}
	if st.CreatedBy != consultantID {
		return common.NewAppError("FORBIDDEN", "접근 권한이 없습니다.", common.ErrForbidden)
	}
	return nil
}

func (s *Service) ownedFile(ctx context.Context, consultantID, fileID uuid.UUID) (*entity.UploadedFile, error) {
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeStudent(ctx, consultantID, f.StudentID); err != nil {
		return nil, err
	}
	return f, nil
}

// List returns the student's records, newest first, joined with their analyses.
func (s *Service) List(ctx context.Context, consultantID, studentID uuid.UUID) ([]Record, error) {
	if err := s.authorizeStudent(ctx, consultantID, studentID); err != nil {
		return nil, err
	}
	files, err := s.files.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	analyses, err := s.analyses.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	byFile := make(map[uuid.UUID]*entity.FileAnalysis, len(analyses))
	for _, a := range analyses {
		byFile[a.FileID] = a
	}
	out := make([]Record, 0, len(files))
	for _, f := range files {
		out = append(out, Record{File: f, Analysis: byFile[f.ID]})
	}
	return out, nil
}

// Reclassify overwrites the taxonomy of one record. The same exclusivity rules
// as extraction apply, so a 교과세특 record never keeps 창체 fields.
func (s *Service) Reclassify(ctx context.Context, consultantID, fileID uuid.UUID, c entity.Classification) (*entity.UploadedFile, error) {
	v := common.NewValidator()
	v.Field("semester", c.Semester, common.Semester)
	v.Field("bongsa_hours", c.BongsaHours, common.NonNegative)
	if err := v.Error(); err != nil {
		return nil, err
	}
	if _, err := s.ownedFile(ctx, consultantID, fileID); err != nil {
		return nil, err
	}
	if err := s.files.UpdateClassification(ctx, fileID, c); err != nil {
		return nil, err
	}
	s.logger.Info("activity.reclassified", "file_id", fileID, "consultant_id", consultantID)
	return s.files.GetByID(ctx, fileID)
}

// EditAnalysis stores a consultant's correction and marks the analysis edited.
func (s *Service) EditAnalysis(ctx context.Context, consultantID, fileID uuid.UUID, c entity.AnalysisContent) (*entity.FileAnalysis, error) {
	v := common.NewValidator()
	v.Field("title", c.Title, common.MaxLength(200))
	if err := v.Error(); err != nil {
		return nil, err
	}
	if _, err := s.ownedFile(ctx, consultantID, fileID); err != nil {
		return nil, err
	}
	if err := s.analyses.Edit(ctx, fileID, c); err != nil {
		return nil, err
	}
	s.logger.Info("activity.analysis_edited", "file_id", fileID, "consultant_id", consultantID)
	return s.analyses.GetByFileID(ctx, fileID)
}

// Delete removes one record. The stored document goes only with its last record.
func (s *Service) Delete(ctx context.Context, consultantID, fileID uuid.UUID) error {
	f, err := s.ownedFile(ctx, consultantID, fileID)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		return err
	}
	remaining, err := s.files.CountByStoragePath(ctx, f.StoragePath)
	if err != nil {
		s.logger.Warn("activity.delete.count_failed", "file_id", fileID, "storage_path", f.StoragePath, "error", err)
		return nil
	}
	if remaining == 0 {
		s.deleteBlob(ctx, f.StoragePath)
	}
	s.logger.Info("activity.deleted", "file_id", fileID, "siblings_left", remaining)
	return nil
}

// DeleteDocument removes every record sharing storagePath, then the document.
func (s *Service) DeleteDocument(ctx context.Context, consultantID, studentID uuid.UUID, storagePath string) (int64, error) {
	storagePath = strings.TrimSpace(storagePath)
	if storagePath == "" {
		return 0, common.NewAppError("INVALID_INPUT", "storage_path가 필요합니다.", common.ErrInvalidInput)
	}
	if err := s.authorizeStudent(ctx, consultantID, studentID); err != nil {
		return 0, err
	}
	n, err := s.files.DeleteByStoragePath(ctx, studentID, storagePath)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, common.NewAppError("NOT_FOUND", "파일을 찾을 수 없습니다.", common.ErrNotFound)
	}
	if left, err := s.files.CountByStoragePath(ctx, storagePath); err == nil && left == 0 {
		s.deleteBlob(ctx, storagePath)
	}
	s.logger.Info("activity.document_deleted", "student_id", studentID, "storage_path", storagePath, "records", n)
	return n, nil
}

// Download returns the original document behind a record.
func (s *Service) Download(ctx context.Context, consultantID, fileID uuid.UUID) (*entity.UploadedFile, []byte, error) {
	f, err := s.ownedFile(ctx, consultantID, fileID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, f.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return f, data, nil
}

func (s *Service) deleteBlob(ctx context.Context, path string) {
	err := s.blobs.Delete(ctx, path)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn("activity.blob_delete_failed", "storage_path", path, "error", err)
	}
}
