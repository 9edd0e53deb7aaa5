package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"
)

const (
	HeaderName       = "Idempotency-Key"
	ReplayHeaderName = "X-Idempotent-Replay"
)

type Options struct {
	TTL   time.Duration
	Clock func() time.Time
}

// Middleware guards POST, PUT, PATCH and DELETE requests that carry an
// Idempotency-Key header. Requests without the header pass through. Keys are
// scoped to the caller, and a completed response is replayed byte for byte.
// Server errors are not stored so the client may retry them.
func Middleware(store Store, log *logger.Logger, opts Options) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				respondError(w, http.StatusBadRequest, "unable to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			requester := auth.UserID(r.Context())
			if requester == "" {
				requester = "anonymous"
			}
			scoped := key + "|" + requester
			fingerprint := sha256Hex(strings.Join([]string{r.Method, r.URL.Path, r.URL.RawQuery, requester, sha256Hex(string(body))}, "|"))

			res, err := store.Reserve(r.Context(), scoped, fingerprint, opts.Clock().UTC(), opts.TTL)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					respondError(w, http.StatusUnprocessableEntity, "idempotency key already used for a different request")
					return
				}
				log.Error("IDEMPOTENCY", fmt.Sprintf("Reserve failed for key %s: %v", key, err))
				respondError(w, http.StatusServiceUnavailable, "unable to process idempotency key")
				return
			}

			switch res.State {
			case ReservationStateCompleted:
				log.Debug("IDEMPOTENCY", fmt.Sprintf("Replaying %s %s for key %s", r.Method, r.URL.Path, key))
				replay(w, res.Record)
				return
			case ReservationStatePending:
				respondError(w, http.StatusConflict, "another request is processing this idempotency key")
				return
			}

			rec := newRecorder()
			defer func() {
				if p := recover(); p != nil {
					if err := store.Release(r.Context(), scoped, fingerprint); err != nil {
						log.Warn("IDEMPOTENCY", fmt.Sprintf("Release after panic failed for key %s: %v", key, err))
					}
					panic(p)
				}
			}()
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(r.Context(), scoped, fingerprint); err != nil {
					log.Warn("IDEMPOTENCY", fmt.Sprintf("Release failed for key %s: %v", key, err))
				}
			} else {
				resp := Response{Status: rec.status, Headers: rec.header, Body: rec.body.Bytes()}
				if err := store.SaveResponse(r.Context(), scoped, fingerprint, resp, opts.Clock().UTC(), opts.TTL); err != nil {
					log.Error("IDEMPOTENCY", fmt.Sprintf("Save failed for key %s: %v", key, err))
				}
			}
			rec.flush(w)
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

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func replay(w http.ResponseWriter, rec Record) {
	for name, values := range rec.ResponseHeaders {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(ReplayHeaderName, "true")
	status := rec.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(rec.ResponseBody)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	_ = utils.WriteJSON(w, status, utils.ErrorResponse(http.StatusText(status), msg))
}

// recorder buffers the handler's response until the outcome is stored.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	if r.status == 0 {
		r.status = http.StatusOK
	}
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body.Bytes())
}
