package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tokenticker/internal/feed"
	"tokenticker/internal/version"
	"tokenticker/internal/waitlist"
)

// tokenFeed is the part of feed.Poller the handlers use.
type tokenFeed interface {
	Snapshot() feed.Snapshot
	Refresh(ctx context.Context) (feed.Snapshot, error)
}

// joiner is the part of waitlist.Service the handlers use.
type joiner interface {
	Join(ctx context.Context, email, source string) (waitlist.Signup, error)
}

// signupCounter is implemented by waitlist.Service.
type signupCounter interface {
	Count(ctx context.Context) (int, error)
}

// Optional counters reported by /api/status.
type statusCounters struct {
	token    string
	clients  interface{ Count() int } // stream.Hub
	signups  signupCounter            // nil when the waitlist is disabled
	cacheLen func() int               // nil when the source is not cached
}

type api struct {
	feed           tokenFeed
	waitlist       joiner // nil when the waitlist is disabled
	stream         http.Handler
	status         statusCounters
	logger         *slog.Logger
	defaultSource  string
	refreshTimeout time.Duration
}

// routes wires the HTTP surface. The WebSocket endpoint bypasses the JSON and
// gzip middleware because it hijacks the connection.
func (a *api) routes(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/token", a.handleGetToken)
	mux.HandleFunc("POST /api/token/refresh", a.handleRefreshToken)
	mux.HandleFunc("POST /api/waitlist", a.handleJoinWaitlist)

	// Panics are recovered inside the gzip layer so the error body is
	// compressed like any other response.
	jsonAPI := withJSONHeaders(withGzip(recoverPanic(a.logger, limitBody(mux))))

	root := http.NewServeMux()
	if a.stream != nil {
		root.Handle("GET /ws/token", a.stream)
	}
	root.Handle("/", jsonAPI)

	return logRequests(a.logger, recoverPanic(a.logger, withCORS(allowedOrigins, root)))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-App-Version", version.Version)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Version         string    `json:"version"`
	Token           string    `json:"token"`
	StreamClients   int       `json:"streamClients"`
	CachedTokens    *int      `json:"cachedTokens,omitempty"`
	WaitlistSignups *int      `json:"waitlistSignups,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
	Error           string    `json:"error,omitempty"`
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := a.feed.Snapshot()
	resp := statusResponse{
		Version:   version.Version,
		Token:     a.status.token,
		UpdatedAt: snap.UpdatedAt,
		Error:     snap.Error,
	}
	if a.status.clients != nil {
		resp.StreamClients = a.status.clients.Count()
	}
	if a.status.cacheLen != nil {
		n := a.status.cacheLen()
		resp.CachedTokens = &n
	}
	if a.status.signups != nil {
		n, err := a.status.signups.Count(r.Context())
		if err != nil {
			a.logger.Warn("counting waitlist signups", "err", err)
		} else {
			resp.WaitlistSignups = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleGetToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.feed.Snapshot())
}

// handleRefreshToken forces a fetch. If the fetch outlives the request budget
// the current snapshot is returned and the fetch completes in the background.
func (a *api) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.refreshTimeout)
	defer cancel()

	s, err := a.feed.Refresh(ctx)
	if err != nil {
		a.logger.Debug("token refresh still in flight", "err", err)
	}
	writeJSON(w, http.StatusOK, s)
}

type joinRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type joinResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (a *api) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	if a.waitlist == nil {
		writeError(w, http.StatusNotFound, "waitlist is not enabled")
		return
	}

	var body joinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	source := body.Source
	if source == "" {
		source = a.defaultSource
	}

	signup, err := a.waitlist.Join(r.Context(), body.Email, source)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, joinResponse{ID: signup.ID.String(), Email: signup.Email})
	case errors.Is(err, waitlist.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid email address")
	case errors.Is(err, waitlist.ErrAlreadyJoined):
		writeError(w, http.StatusConflict, "email already on the waitlist")
	case errors.Is(err, waitlist.ErrUpstream):
		writeError(w, http.StatusBadGateway, "waitlist service unavailable")
	default:
		a.logger.Error("waitlist signup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
