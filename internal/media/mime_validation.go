package media

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type mimeGroup string

const (
	mimeGroupImages mimeGroup = "images"
	mimeGroupPDFs   mimeGroup = "pdfs"
)

var mimeGroupNames = map[mimeGroup]string{
	mimeGroupImages: "JPEG, PNG or WebP images",
	mimeGroupPDFs:   "PDFs",
}

// prescriptionMimeTypes maps each accepted content type to its object extension.
var prescriptionMimeTypes = map[string]struct {
	group mimeGroup
	ext   string
}{
	"image/jpeg":      {mimeGroupImages, "jpg"},
	"image/png":       {mimeGroupImages, "png"},
	"image/webp":      {mimeGroupImages, "webp"},
	"application/pdf": {mimeGroupPDFs, "pdf"},
}

var allowedDescription = fmt.Sprintf("%s or %s", mimeGroupNames[mimeGroupImages], mimeGroupNames[mimeGroupPDFs])

// sniffMimeType detects the content type from the bytes themselves; the
// declared type of a data URL is never trusted.
func sniffMimeType(body []byte) (mediaType, ext string, err error) {
	detected := mimetype.Detect(body)
	mediaType = strings.ToLower(detected.String())
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	entry, ok := prescriptionMimeTypes[mediaType]
	if !ok {
		return "", "", fmt.Errorf("unsupported content type %s: upload %s", mediaType, allowedDescription)
	}
	return mediaType, entry.ext, nil
}
