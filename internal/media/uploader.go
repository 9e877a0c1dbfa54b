// Package media stores prescription images submitted inline as data URLs.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/storage/gcs"
)

const (
	objectPrefix          = "prescriptions/"
	defaultMaxUploadBytes = 8 * 1024 * 1024
)

type objectStore interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error)
	DeleteObject(ctx context.Context, object string) error
	PublicURL(object string) string
}

// Uploader validates and stores prescription images.
type Uploader struct {
	store    objectStore
	maxBytes int64
	logg     *logger.Logger
	newID    func() uuid.UUID
}

func NewUploader(store objectStore, maxBytes int64, logg *logger.Logger) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Uploader{store: store, maxBytes: maxBytes, logg: logg, newID: uuid.New}, nil
}

// Upload decodes a data:<mime>;base64,<payload> URL, checks the sniffed type
// and size, and returns the public URL of the stored object.
func (u *Uploader) Upload(ctx context.Context, dataURL string) (string, error) {
	body, err := u.decode(dataURL)
	if err != nil {
		return "", err
	}
	contentType, ext, err := sniffMimeType(body)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported prescription file")
	}

	object := fmt.Sprintf("%s%s.%s", objectPrefix, u.newID(), ext)
	publicURL, err := u.store.Upload(ctx, object, contentType, bytes.NewReader(body))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store prescription image")
	}
	logCtx := u.logg.WithFields(ctx, map[string]any{
		"object":       object,
		"content_type": contentType,
		"bytes":        len(body),
	})
	u.logg.Info(logCtx, "prescription image stored")
	return publicURL, nil
}

// Discard removes an object previously returned by Upload. URLs outside the
// prescriptions prefix are ignored.
func (u *Uploader) Discard(ctx context.Context, publicURL string) error {
	prefix := u.store.PublicURL(objectPrefix)
	if !strings.HasPrefix(publicURL, prefix) {
		return nil
	}
	object := objectPrefix + strings.TrimPrefix(publicURL, prefix)
	if err := u.store.DeleteObject(ctx, object); err != nil && !errors.Is(err, gcs.ErrObjectNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discard prescription image")
	}
	return nil
}

func (u *Uploader) decode(dataURL string) ([]byte, error) {
	raw := strings.TrimSpace(dataURL)
	if !strings.HasPrefix(raw, "data:") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image must be a data URL")
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image data URL must be base64 encoded")
	}
	// reject before decoding; base64 inflates by 4/3
	if int64(len(payload))*3/4 > u.maxBytes {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "image exceeds %d bytes", u.maxBytes)
	}
	body, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "image data URL is not valid base64")
	}
	if len(body) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image is empty")
	}
	if int64(len(body)) > u.maxBytes {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "image exceeds %d bytes", u.maxBytes)
	}
	return body, nil
}
