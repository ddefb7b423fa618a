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
	"strings"
	"time"

	"github.com/angelmondragon/sweetshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/redis"
)

// IdempotencyHeader carries the client supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

// inFlightTTL bounds how long a crashed request can block its key.
const inFlightTTL = 2 * time.Minute

// ReplayStore persists replay records.
type ReplayStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Replay configures one idempotent route.
type Replay struct {
	// TTL is how long a completed response is replayed.
	TTL time.Duration
	// Required rejects requests that omit the header.
	Required bool
}

type replayRecord struct {
	Done        bool   `json:"done"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent replays the first response for a (user, route, Idempotency-Key) triple.
// A second request arriving while the first is still running gets 409. 5xx responses are not
// stored so the client can retry with the same key.
func Idempotent(store ReplayStore, logg *logger.Logger, opts Replay) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				if opts.Required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			reqHash := hex.EncodeToString(sum[:])
			key := redis.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			marker, _ := json.Marshal(replayRecord{RequestHash: reqHash})
			claimed, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if !claimed {
				replayExisting(ctx, store, logg, w, key, reqHash)
				return
			}

			// detach from the request so a client disconnect does not strand the marker
			bg := context.WithoutCancel(ctx)
			release := func() {
				if err := store.Del(bg, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
			}
			defer func() {
				if rec := recover(); rec != nil {
					release()
					panic(rec)
				}
			}()

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			status := capture.statusCode()

			if status >= http.StatusInternalServerError {
				release()
				return
			}
			done, _ := json.Marshal(replayRecord{
				Done:        true,
				RequestHash: reqHash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(bg, key, string(done), opts.TTL); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replayExisting(ctx context.Context, store ReplayStore, logg *logger.Logger, w http.ResponseWriter, key, reqHash string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the first request failed and released the key between our SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried, try again"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var rec replayRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case rec.RequestHash != reqHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case !rec.Done:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
	}
}

type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
