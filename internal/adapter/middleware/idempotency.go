package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"halonet-payments/internal/infrastructure/logging"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestAt      = "X-Request-At"
	HeaderReplayed       = "Idempotent-Replayed"

	// Lifetime of the in-flight marker if the handler never finishes.
	inFlightTTL  = 60 * time.Second
	maxClockSkew = 10 * time.Minute
)

type respRecorder struct {
	w    http.ResponseWriter
	buf  *bytes.Buffer
	code int
}

func (r *respRecorder) Header() http.Header { return r.w.Header() }
func (r *respRecorder) Write(b []byte) (int, error) {
	if r.buf != nil {
		r.buf.Write(b)
	}
	return r.w.Write(b)
}
func (r *respRecorder) WriteHeader(statusCode int) { r.code = statusCode; r.w.WriteHeader(statusCode) }

// Idempotency replays the stored response when a mutating request is repeated
// with the same Idempotency-Key and body. Keys are scoped to the authenticated
// principal, so Auth must run first. Server errors are not stored; the client
// may retry them with the same key.
func Idempotency(rdb *redis.Client, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			method := req.Method

			switch method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			p, ok := PrincipalFrom(req.Context())
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			}
			idemKey := strings.TrimSpace(req.Header.Get(HeaderIdempotencyKey))
			if idemKey == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing " + HeaderIdempotencyKey})
			}
			if !validKey(idemKey) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid " + HeaderIdempotencyKey + " format"})
			}
			reqAt, err := parseRequestAt(req.Header.Get(HeaderRequestAt))
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			now := clock()
			if reqAt.Before(now.Add(-maxClockSkew)) || reqAt.After(now.Add(maxClockSkew)) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": HeaderRequestAt + " too skewed"})
			}

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(body))
			fp := fingerprint(body)

			store := replays{rdb: rdb}
			key := replayKey(p, method, c.Path(), idemKey)
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()

			ok, err = store.reserve(ctx, key, replay{InFlight: true, Fingerprint: fp, RequestAt: reqAt, StoredAt: now})
			if err != nil {
				logging.LogError(req.Context(), "middleware", "Idempotency", "reserve", key, err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency store unavailable"})
			}
			if !ok {
				cur, errLoad := store.load(ctx, key)
				if errLoad != nil {
					logging.LogError(req.Context(), "middleware", "Idempotency", "load", key, errLoad)
				}
				if cur.Fingerprint != "" && cur.Fingerprint != fp {
					return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": HeaderIdempotencyKey + " reused with a different body"})
				}
				if cur.finished() {
					c.Response().Header().Set(HeaderReplayed, "true")
					ct := cur.ContentType
					if ct == "" {
						ct = echo.MIMEApplicationJSON
					}
					return c.Blob(cur.Status, ct, cur.Body)
				}
				return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
			}

			rec := &respRecorder{w: c.Response().Writer, buf: &bytes.Buffer{}, code: http.StatusOK}
			c.Response().Writer = rec
			if err := next(c); err != nil {
				c.Error(err)
			}

			if rec.code >= 500 {
				if err := store.release(context.Background(), key); err != nil {
					logging.LogError(req.Context(), "middleware", "Idempotency", "release", key, err)
				}
				return nil
			}
			final := replay{
				Status:      rec.code,
				ContentType: rec.Header().Get(echo.HeaderContentType),
				Body:        rec.buf.Bytes(),
				Fingerprint: fp,
				RequestAt:   reqAt,
				StoredAt:    clock(),
			}
			if err := store.commit(context.Background(), key, final, ttl); err != nil {
				logging.LogError(req.Context(), "middleware", "Idempotency", "commit", key, err)
			}
			return nil
		}
	}
}
