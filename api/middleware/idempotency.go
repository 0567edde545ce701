package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/huddle-backend/api/responses"
	"github.com/angelmondragon/huddle-backend/api/validators"
	"github.com/angelmondragon/huddle-backend/internal/idempotency"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
	"github.com/angelmondragon/huddle-backend/pkg/metrics"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

// Idempotency records the response of mutating requests that carry an
// Idempotency-Key header and replays it for retries of the same key.
func Idempotency(guard *idempotency.Guard, m *metrics.RealtimeMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if guard == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if idempotencyKey == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, validators.MaxBodyBytes+1))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			if len(body) > validators.MaxBodyBytes {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "request body exceeds %d bytes", validators.MaxBodyBytes))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := buildScope(r) + "|" + idempotencyKey
			rec, replayed, err := guard.WithRequest(r.Context(), key, hashBody(body), guard.TTL(), func(ctx context.Context) (idempotency.Record, error) {
				capture := newBufferedResponse(w.Header().Get(requestIDHeader))
				next.ServeHTTP(capture, r.WithContext(ctx))
				return capture.record(), nil
			})
			switch {
			case errors.Is(err, idempotency.ErrKeyReused):
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "idempotency key reused with different request body"))
				return
			case err != nil && rec.Status == 0:
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			case err != nil:
				// the handler ran; only persisting its outcome failed
				logError(r.Context(), logg, "persist idempotency record", err)
			}

			if replayed {
				m.IncIdempotentReplay()
				w.Header().Set(replayedHeader, "true")
				if logg != nil {
					logg.Info(logg.WithField(r.Context(), "idempotency_key", idempotencyKey), "idempotency.replay")
				}
			}
			writeRecord(w, rec)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func buildScope(r *http.Request) string {
	parts := []string{
		UserIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func writeRecord(w http.ResponseWriter, rec idempotency.Record) {
	for k, v := range rec.Headers {
		w.Header().Set(k, v)
	}
	status := rec.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(rec.Body)
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// bufferedResponse holds the handler output until the guard decides what the
// client sees.
type bufferedResponse struct {
	header http.Header
	body   bytes.Buffer
	status int
}

// newBufferedResponse seeds the request id so error envelopes written by the
// handler carry it.
func newBufferedResponse(requestID string) *bufferedResponse {
	b := &bufferedResponse{header: http.Header{}}
	if requestID != "" {
		b.header.Set(requestIDHeader, requestID)
	}
	return b
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) record() idempotency.Record {
	rec := idempotency.Record{
		Status: b.status,
		Body:   append([]byte(nil), b.body.Bytes()...),
	}
	if rec.Status == 0 {
		rec.Status = http.StatusOK
	}
	for k := range b.header {
		// replays keep the request id of the live request
		if k == requestIDHeader {
			continue
		}
		if rec.Headers == nil {
			rec.Headers = make(map[string]string, len(b.header))
		}
		rec.Headers[k] = b.header.Get(k)
	}
	return rec
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
