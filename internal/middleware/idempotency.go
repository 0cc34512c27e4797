package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/account-ledger/internal/handler"
	"github.com/josh-kwaku/account-ledger/internal/lock"
	"github.com/josh-kwaku/account-ledger/internal/logging"
	"github.com/josh-kwaku/account-ledger/internal/repository"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	maxKeyLength      = 255
)

var (
	errIdempotencyConflict = &handler.AppError{Status: http.StatusConflict, Code: "IDEMPOTENCY_CONFLICT", Message: "Idempotency key already used with a different request"}
	errIdempotencyKey      = &handler.AppError{Status: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Idempotency-Key must be at most 255 characters"}
)

type idempotencyStore interface {
	Get(ctx context.Context, key string) (*repository.IdempotencyEntry, error)
	Set(ctx context.Context, entry *repository.IdempotencyEntry) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating requests. Requests without the header pass through. Requests
// sharing a key are serialized through locker so only one of them runs.
// Server errors are not stored, so a retry after one runs again.
func Idempotency(store idempotencyStore, locker lock.Locker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				handler.RespondAppError(w, errIdempotencyKey, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)
			log := logging.FromContext(r.Context())

			err = locker.WithLock(r.Context(), "idempotency:"+key, func(ctx context.Context) error {
				cached, err := store.Get(ctx, key)
				if err != nil {
					return err
				}

				if cached != nil {
					if cached.RequestHash != reqHash {
						handler.RespondAppError(w, errIdempotencyConflict, nil)
						return nil
					}

					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Idempotent-Replayed", "true")
					w.WriteHeader(cached.StatusCode)
					if _, err := w.Write(cached.ResponseBody); err != nil {
						log.Error("failed to write idempotent replay", "error", err, "idempotency_key", key)
					}
					return nil
				}

				rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
				next.ServeHTTP(rec, r.WithContext(ctx))

				if rec.statusCode >= http.StatusInternalServerError {
					return nil
				}

				now := time.Now().UTC()
				entry := &repository.IdempotencyEntry{
					Key:          key,
					RequestHash:  reqHash,
					StatusCode:   rec.statusCode,
					ResponseBody: rec.body.Bytes(),
					CreatedAt:    now,
					ExpiresAt:    now.Add(idempotencyTTL),
				}
				if err := store.Set(context.WithoutCancel(ctx), entry); err != nil {
					log.Error("idempotency store write failed", "error", err, "idempotency_key", key)
				}
				return nil
			})
			if err != nil {
				log.Error("idempotency lookup failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		})
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
