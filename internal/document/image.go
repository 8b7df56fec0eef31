package document

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
)

// encodeImage downscales images larger than maxDim on the long side. WebP is
// passed through untouched since imaging cannot decode it.
func encodeImage(ext, mimeType string, data []byte, maxDim int) (*Image, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if !strings.HasPrefix(mt, "image/") {
		mt = constants.MimeForExt(ext)
	}
	if ext == "webp" {
		return &Image{MimeType: "image/webp", Base64: base64.StdEncoding.EncodeToString(data)}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	if max(w, h) <= maxDim && (mt == "image/png" || mt == "image/jpeg") {
		return &Image{MimeType: mt, Base64: base64.StdEncoding.EncodeToString(data), Width: w, Height: h}, nil
	}

	if max(w, h) > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	format, outMime := imaging.PNG, "image/png"
	if mt == "image/jpeg" {
		format, outMime = imaging.JPEG, "image/jpeg"
	}
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	nb := img.Bounds()
	return &Image{
		MimeType: outMime,
		Base64:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:    nb.Dx(),
		Height:   nb.Dy(),
	}, nil
}
