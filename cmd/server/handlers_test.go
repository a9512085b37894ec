package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tokenticker/internal/feed"
	"tokenticker/internal/waitlist"
)

type stubFeed struct {
	snap      feed.Snapshot
	refreshed feed.Snapshot
	calls     int
}

func (s *stubFeed) Snapshot() feed.Snapshot { return s.snap }

func (s *stubFeed) Refresh(context.Context) (feed.Snapshot, error) {
	s.calls++
	s.snap = s.refreshed
	return s.snap, nil
}

type stubJoiner func(ctx context.Context, email, source string) (waitlist.Signup, error)

func (f stubJoiner) Join(ctx context.Context, email, source string) (waitlist.Signup, error) {
	return f(ctx, email, source)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(f tokenFeed, j joiner) http.Handler {
	a := &api{
		feed:           f,
		logger:         discardLogger(),
		defaultSource:  "landing",
		refreshTimeout: time.Second,
	}
	if j != nil {
		a.waitlist = j
	}
	return a.routes([]string{"https://landing.example"})
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequestWithContext(t.Context(), method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := newTestAPI(&stubFeed{}, nil)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.Equal(t, "dev", rec.Header().Get("X-App-Version"))
}

func TestGetToken(t *testing.T) {
	h := newTestAPI(&stubFeed{snap: feed.Initial()}, nil)

	rec := do(t, h, http.MethodGet, "/api/token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	require.JSONEq(t, `{"marketCap":"$7.1K","price":"$0.000142","volume24h":"$1.2K","isLoading":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/token", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefreshToken(t *testing.T) {
	refreshed := feed.Fallback(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	f := &stubFeed{snap: feed.Initial(), refreshed: refreshed}
	h := newTestAPI(f, nil)

	rec := do(t, h, http.MethodPost, "/api/token/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.calls)

	var got feed.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, refreshed, got)
}

func TestJoinWaitlist(t *testing.T) {
	var gotEmail, gotSource string
	j := stubJoiner(func(_ context.Context, email, source string) (waitlist.Signup, error) {
		gotEmail, gotSource = email, source
		return waitlist.Signup{Email: "fan@example.com"}, nil
	})
	h := newTestAPI(&stubFeed{}, j)

	rec := do(t, h, http.MethodPost, "/api/waitlist", `{"email":"Fan@Example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "Fan@Example.com", gotEmail)
	require.Equal(t, "landing", gotSource)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "fan@example.com", body["email"])
}

func TestJoinWaitlist_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"invalid email", `{"email":"x"}`, waitlist.ErrInvalidEmail, http.StatusBadRequest},
		{"duplicate", `{"email":"a@b.co"}`, waitlist.ErrAlreadyJoined, http.StatusConflict},
		{"upstream", `{"email":"a@b.co"}`, errors.Join(waitlist.ErrUpstream, errors.New("503")), http.StatusBadGateway},
		{"store failure", `{"email":"a@b.co"}`, errors.New("disk full"), http.StatusInternalServerError},
		{"too large", `{"email":"` + strings.Repeat("a", maxBody) + `"}`, nil, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := stubJoiner(func(context.Context, string, string) (waitlist.Signup, error) {
				return waitlist.Signup{}, tt.err
			})
			rec := do(t, newTestAPI(&stubFeed{}, j), http.MethodPost, "/api/waitlist", tt.body)
			require.Equal(t, tt.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestJoinWaitlist_Disabled(t *testing.T) {
	rec := do(t, newTestAPI(&stubFeed{}, nil), http.MethodPost, "/api/waitlist", `{"email":"a@b.co"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newTestAPI(&stubFeed{snap: feed.Initial()}, nil)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodOptions, "/api/waitlist", http.NoBody)
	req.Header.Set("Origin", "https://landing.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://landing.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/api/token", http.NoBody)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGzip(t *testing.T) {
	h := newTestAPI(&stubFeed{snap: feed.Initial()}, nil)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/api/token", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Contains(t, string(b), `"price":"$0.000142"`)
}

type panicFeed struct{ stubFeed }

func (panicFeed) Snapshot() feed.Snapshot { panic("boom") }

func TestRecoverPanic(t *testing.T) {
	rec := do(t, newTestAPI(&panicFeed{}, nil), http.MethodGet, "/api/token", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecoverPanic_GzipResponse(t *testing.T) {
	h := newTestAPI(&panicFeed{}, nil)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/api/token", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"internal server error"}`, string(b))
}

type countFunc func() int

func (f countFunc) Count() int { return f() }

type stubSignups struct {
	n   int
	err error
}

func (s stubSignups) Count(context.Context) (int, error) { return s.n, s.err }

func TestStatus(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &api{
		feed:   &stubFeed{snap: feed.Initial().Failed(at)},
		logger: discardLogger(),
		status: statusCounters{
			token:    "tok",
			clients:  countFunc(func() int { return 3 }),
			signups:  stubSignups{n: 42},
			cacheLen: func() int { return 1 },
		},
	}
	rec := do(t, a.routes(nil), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"version":"dev","token":"tok","streamClients":3,"cachedTokens":1,
		"waitlistSignups":42,"updatedAt":"2025-01-01T00:00:00Z","error":"Failed to fetch token data"
	}`, rec.Body.String())
}

func TestStatus_OptionalCounters(t *testing.T) {
	a := &api{
		feed:   &stubFeed{snap: feed.Initial()},
		logger: discardLogger(),
		status: statusCounters{token: "tok", signups: stubSignups{err: errors.New("db down")}},
	}
	rec := do(t, a.routes(nil), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"version":"dev","token":"tok","streamClients":0}`, rec.Body.String())
}
