package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

var alice = Principal{UserID: "alice", CompanyID: "co-1"}

// asPrincipal stands in for Auth so the idempotency tests need no tokens.
func asPrincipal(p Principal) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

func setupEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(asPrincipal(alice), Idempotency(rdb, ttl))
	e.POST("/batches/:batch_id/submit", handler)
	e.GET("/batches/:batch_id", handler)
	return e
}

func mkJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func doReq(t *testing.T, e *echo.Echo, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func validHeaders() map[string]string {
	return map[string]string{
		HeaderIdempotencyKey: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		HeaderRequestAt:      time.Now().UTC().Format(time.RFC3339),
	}
}

func okAcceptedHandler(c echo.Context) error {
	return c.JSON(http.StatusAccepted, map[string]any{"status": "submitted"})
}

func Test_BypassOnGET_NoHeadersRequired(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 30*time.Second, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "get ok"})
	})
	rec := doReq(t, e, http.MethodGet, "/batches/b-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func Test_ValidationFailures(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 30*time.Second, okAcceptedHandler)

	tests := []struct {
		name   string
		mutate func(h map[string]string)
	}{
		{"missing key", func(h map[string]string) { delete(h, HeaderIdempotencyKey) }},
		{"invalid key", func(h map[string]string) { h[HeaderIdempotencyKey] = "NOT-VALID" }},
		{"invalid request-at", func(h map[string]string) { h[HeaderRequestAt] = "not-a-time" }},
		{"skewed request-at", func(h map[string]string) {
			h[HeaderRequestAt] = time.Now().UTC().Add(-maxClockSkew - time.Minute).Format(time.RFC3339)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHeaders()
			tt.mutate(h)
			rec := doReq(t, e, http.MethodPost, "/batches/b-1/submit", mkJSONBody(t, map[string]int{"x": 1}), h)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", rec.Code)
			}
		})
	}
}

func Test_RequiresPrincipal(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := echo.New()
	e.Use(Idempotency(rdb, time.Minute))
	e.POST("/x", okAcceptedHandler)
	rec := doReq(t, e, http.MethodPost, "/x", nil, validHeaders())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func Test_HappyPath_Then_Replay(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	calls := 0
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		calls++
		return okAcceptedHandler(c)
	})
	h := validHeaders()

	rec1 := doReq(t, e, http.MethodPost, "/batches/b-1/submit", mkJSONBody(t, map[string]any{"provider_id": "sandbox"}), h)
	if rec1.Code != http.StatusAccepted {
		t.Fatalf("first request => want 202, got %d, body: %s", rec1.Code, rec1.Body.String())
	}
	rec2 := doReq(t, e, http.MethodPost, "/batches/b-1/submit", mkJSONBody(t, map[string]any{"provider_id": "sandbox"}), h)
	if rec2.Code != http.StatusAccepted {
		t.Fatalf("replay => want 202, got %d, body: %s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() || rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func Test_ServerErrorsAreNotStored(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	calls := 0
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		calls++
		if calls == 1 {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "boom"})
		}
		return okAcceptedHandler(c)
	})
	h := validHeaders()
	doReq(t, e, http.MethodPost, "/batches/b-1/submit", bytes.NewReader([]byte(`{}`)), h)
	rec := doReq(t, e, http.MethodPost, "/batches/b-1/submit", bytes.NewReader([]byte(`{}`)), h)
	if rec.Code != http.StatusAccepted || calls != 2 {
		t.Fatalf("retry after 500 => code %d, calls %d", rec.Code, calls)
	}
}

func Test_Conflict_When_InProgress(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 2*time.Minute, okAcceptedHandler)

	body := []byte(`{"x":1}`)
	h := validHeaders()
	key := replayKey(alice, http.MethodPost, "/batches/:batch_id/submit", h[HeaderIdempotencyKey])
	held := replay{InFlight: true, Fingerprint: fingerprint(body), RequestAt: clock(), StoredAt: clock()}
	if ok, err := (replays{rdb: rdb}).reserve(context.Background(), key, held); err != nil || !ok {
		t.Fatalf("seed in-flight marker failed, ok=%v err=%v", ok, err)
	}

	rec := doReq(t, e, http.MethodPost, "/batches/b-1/submit", bytes.NewReader(body), h)
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_SameKey_DifferentBody(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 2*time.Minute, okAcceptedHandler)
	h := validHeaders()

	doReq(t, e, http.MethodPost, "/batches/b-1/submit", bytes.NewReader([]byte(`{"x":1}`)), h)
	rec := doReq(t, e, http.MethodPost, "/batches/b-1/submit", bytes.NewReader([]byte(`{"x":2}`)), h)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("different body same key => want 422, got %d", rec.Code)
	}
}

func Test_KeysAreScopedToPrincipal(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	calls := 0
	handler := func(c echo.Context) error { calls++; return okAcceptedHandler(c) }

	e := echo.New()
	g1 := e.Group("/a", asPrincipal(alice), Idempotency(rdb, time.Minute))
	g1.POST("/submit", handler)
	g2 := e.Group("/b", asPrincipal(Principal{UserID: "alice", CompanyID: "co-2"}), Idempotency(rdb, time.Minute))
	g2.POST("/submit", handler)

	h := validHeaders()
	doReq(t, e, http.MethodPost, "/a/submit", bytes.NewReader([]byte(`{}`)), h)
	doReq(t, e, http.MethodPost, "/b/submit", bytes.NewReader([]byte(`{}`)), h)
	if calls != 2 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func Test_StoreUnavailable_Returns503(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	e := setupEcho(rdb, time.Minute, okAcceptedHandler)

	rec := doReq(t, e, http.MethodPost, "/batches/b-1/submit", bytes.NewReader([]byte(`{}`)), validHeaders())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => want 503, got %d", rec.Code)
	}
}
