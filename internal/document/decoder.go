// Package document turns uploaded bytes into model input: plain text for PDF
// and DOCX reports, a downscaled base64 image for photos and scans.
package document

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

// Content is the decoded form of a document. Exactly one of Text or Image is set.
type Content struct {
	Format constants.Format
	Text   string
	Image  *Image
	Pages  int // PDF only
}

// Image is a vision-ready payload.
type Image struct {
	MimeType string
	Base64   string
	Width    int
	Height   int
}

// DataURL renders the image as a data: URL for chat/completions image_url parts.
func (i *Image) DataURL() string {
	return "data:" + i.MimeType + ";base64," + i.Base64
}

type Config struct {
	MaxBytes    int64
	MaxImageDim int
}

type Decoder struct {
	cfg    Config
	logger *slog.Logger
}

func NewDecoder(cfg Config, logger *slog.Logger) *Decoder {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = constants.MaxUploadBytes
	}
	if cfg.MaxImageDim <= 0 {
		cfg.MaxImageDim = constants.MaxImageDimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{cfg: cfg, logger: logger}
}

// Decode checks size and extension before touching the bytes, then extracts.
func (d *Decoder) Decode(name, mimeType string, data []byte) (Content, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(name))

	if int64(len(data)) > d.cfg.MaxBytes {
		return Content{}, common.NewAppError("FILE_TOO_LARGE",
			fmt.Sprintf("파일 크기는 %dMB 이하여야 합니다.", d.cfg.MaxBytes/(1024*1024)), common.ErrFileTooLarge)
	}
	format := constants.MapExtToFormat(ext)
	if format == "" {
		return Content{}, common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("지원하지 않는 파일 형식입니다: %q", ext), common.ErrUnsupportedFormat)
	}
	if len(data) == 0 {
		return Content{}, common.NewAppError("EMPTY_CONTENT", "빈 파일입니다.", common.ErrEmptyContent)
	}

	var (
		out Content
		err error
	)
	switch {
	case format == constants.IMAGE:
		out, err = d.decodeImage(ext, mimeType, data)
	case ext == "pdf":
		out, err = d.decodePDF(data)
	case ext == "docx":
		out, err = d.decodeDOCX(data)
	}
	if err != nil {
		d.logger.Warn("document.decode.failed", "file_name", name, "ext", ext, "error", err)
		return Content{}, err
	}

	d.logger.Info("document.decode.ok",
		"file_name", name,
		"format", out.Format,
		"text_len", len([]rune(out.Text)),
		"pages", out.Pages,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (d *Decoder) decodePDF(data []byte) (Content, error) {
	if !isPDF(data) {
		return Content{}, extractionFailed(fmt.Errorf("missing %%PDF header (head=%s)", firstBytesHex(data, 8)))
	}
	pages, err := pdfPageCount(data)
	if err != nil {
		// Page count is informational; text extraction decides the outcome.
		d.logger.Debug("document.pdf.page_count_failed", "error", err)
	}
	text, err := extractPDF(data)
	if err != nil {
		return Content{}, extractionFailed(err)
	}
	text = Normalize(text)
	if text == "" {
		return Content{}, emptyContent()
	}
	return Content{Format: constants.TEXT, Text: text, Pages: pages}, nil
}

func (d *Decoder) decodeDOCX(data []byte) (Content, error) {
	if !isZip(data) {
		return Content{}, extractionFailed(fmt.Errorf("docx is not a zip container (head=%s)", firstBytesHex(data, 8)))
	}
	text, err := extractDOCX(data)
	if err != nil {
		return Content{}, extractionFailed(err)
	}
	text = Normalize(text)
	if text == "" {
		return Content{}, emptyContent()
	}
	return Content{Format: constants.TEXT, Text: text}, nil
}

func (d *Decoder) decodeImage(ext, mimeType string, data []byte) (Content, error) {
	img, err := encodeImage(ext, mimeType, data, d.cfg.MaxImageDim)
	if err != nil {
		return Content{}, extractionFailed(err)
	}
	return Content{Format: constants.IMAGE, Image: img}, nil
}

func extractionFailed(cause error) error {
	return common.NewAppError("EXTRACTION_FAILED", "텍스트 추출 실패",
		fmt.Errorf("%w: %v", common.ErrExtractionFailed, cause))
}

func emptyContent() error {
	return common.NewAppError("EMPTY_CONTENT", "파일에서 텍스트를 추출할 수 없습니다.", common.ErrEmptyContent)
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func firstBytesHex(b []byte, n int) string {
	n = min(len(b), n)
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, hexdigits[b[i]>>4], hexdigits[b[i]&0x0f])
	}
	return string(out)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
