package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/farmolink/farmolink-backend/api/responses"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	pkgredis "github.com/farmolink/farmolink-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = time.Minute
	maxIdempotencyKeyLen   = 255
	replayHeader           = "Idempotent-Replayed"
	inFlightMarker         = "in_flight"
)

// ReplayStore persists replay records. Set overwrites the in-flight marker
// once the handler has produced a response.
type ReplayStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type idempotencyRule struct {
	method string
	// pattern is a path.Match glob over the request path.
	pattern  string
	critical bool
}

// Rules match the raw path since chi has not resolved the route pattern when
// group middleware runs.
var idempotencyRules = []idempotencyRule{
	{http.MethodPost, "/api/prescriptions", false},
	{http.MethodDelete, "/api/prescriptions/*", false},
	{http.MethodPost, "/api/prescriptions/*/quotes", false},
	{http.MethodPost, "/api/prescriptions/*/rejections", false},
	{http.MethodPost, "/api/quotes/*/reject", false},
	{http.MethodPost, "/api/orders/*/status", false},
	{http.MethodPost, "/api/settlements/report", false},
	{http.MethodPost, "/api/notifications/*/read", false},
	{http.MethodPost, "/api/notifications/read-all", false},
	{http.MethodPatch, "/api/admin/pharmacies/*/commission", false},
	// money-moving calls keep their replay record for a week
	{http.MethodPost, "/api/quotes/*/accept", true},
	{http.MethodPost, "/api/orders", true},
	{http.MethodPost, "/api/admin/settlements/confirm", true},
}

func matchRule(method, requestPath string) (idempotencyRule, bool) {
	requestPath = strings.TrimSuffix(requestPath, "/")
	for _, rule := range idempotencyRules {
		if rule.method != method {
			continue
		}
		if ok, _ := path.Match(rule.pattern, requestPath); ok {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

type replayRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a mutating call is retried
// with the same Idempotency-Key. Requests without the header pass through.
// A concurrent retry of a call still running gets IDEMPOTENCY_KEY_REUSED.
// Server errors are not recorded so the client can retry them.
func Idempotency(store ReplayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			rule, ok := matchRule(r.Method, r.URL.Path)
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			digest := sha256.Sum256(body)
			requestHash := hex.EncodeToString(digest[:])
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			claimed, err := store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, logg, w, store, key, requestHash)
				return
			}

			release := func() {
				if delErr := store.Del(context.WithoutCancel(ctx), key); delErr != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", delErr)
				}
			}
			capture := &responseCapture{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					release()
					panic(p)
				}
				status := defaultStatus(capture.status)
				if status >= http.StatusInternalServerError {
					release()
					return
				}
				record, _ := json.Marshal(replayRecord{
					Status:      status,
					ContentType: capture.Header().Get("Content-Type"),
					Body:        capture.body.Bytes(),
					RequestHash: requestHash,
				})
				recordTTL := ttl
				if rule.critical {
					recordTTL = criticalIdempotencyTTL
				}
				if setErr := store.Set(context.WithoutCancel(ctx), key, string(record), recordTTL); setErr != nil && logg != nil {
					logg.Error(ctx, "persist idempotency record", setErr)
				}
			}()
			next.ServeHTTP(capture, r)
		})
	}
}

// replay answers a retried request from the stored record.
func replay(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store ReplayStore, key, requestHash string) {
	stored, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, pkgredis.ErrNil):
		// The first attempt failed and released the key between our SETNX and GET.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request state changed, retry"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	case stored == inFlightMarker:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}

	var record replayRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
