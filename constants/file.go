package constants

import "strings"

// Format is how an uploaded document is handed to the model.
type Format string

const (
	TEXT  Format = "TEXT"
	IMAGE Format = "IMAGE"
)

const (
	MaxUploadBytes     = 10 * 1024 * 1024
	MaxRawTextChars    = 50000
	MaxPromptTextChars = 15000
	MaxImageDimension  = 2048
)

// AllowedExtensions holds the document extensions accepted for analysis.
var AllowedExtensions = map[string]Format{
	"pdf":  TEXT,
	"docx": TEXT,
	"png":  IMAGE,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"webp": IMAGE,
	"gif":  IMAGE,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat returns "" for unsupported extensions.
func MapExtToFormat(ext string) Format {
	return AllowedExtensions[NormalizeExt(ext)]
}

// MimeForExt is used when the client did not send a usable content type.
func MimeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
