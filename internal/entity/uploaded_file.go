package entity

import (
	"time"

	"github.com/google/uuid"
)

// UploadedFile is one derived activity record of a stored document. Several
// records share a StoragePath when one document yields several entries.
type UploadedFile struct {
	ID            uuid.UUID `json:"id"`
	StudentID     uuid.UUID `json:"student_id"`
	UploadedBy    uuid.UUID `json:"uploaded_by"`
	FileName      string    `json:"file_name"`
	FileType      string    `json:"file_type"`
	MimeType      string    `json:"mime_type"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	StoragePath   string    `json:"storage_path"`
	Classification
	AnalysisStatus string    `json:"analysis_status"`
	AnalysisError  *string   `json:"analysis_error"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FileAnalysis holds the extracted content of exactly one UploadedFile.
type FileAnalysis struct {
	ID        uuid.UUID `json:"id"`
	FileID    uuid.UUID `json:"file_id"`
	StudentID uuid.UUID `json:"student_id"`
	AnalysisContent
	RawText   string    `json:"raw_text,omitempty"`
	IsEdited  bool      `json:"is_edited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
