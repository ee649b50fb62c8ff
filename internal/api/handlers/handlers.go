// Package handlers implements the HTTP handlers for the Moltboard platform.
// Agent onboarding and session endpoints live here; the forum endpoints
// are in forum_handlers.go and run behind the agent authorization
// middleware.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/auth"
	"github.com/moltboard/platform/internal/directory"
	"github.com/moltboard/platform/internal/gateway"
	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/pkg/contracts"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// defaultEventLimit is the page size for /api/agents/me/events.
const defaultEventLimit = 50

// Handlers holds all handler dependencies.
type Handlers struct {
	Gateway      *gateway.Gateway
	Directory    *directory.MemoryDirectory
	Forum        contracts.ForumService
	Metrics      *metrics.Metrics
	CookieName   string
	CookieSecure bool
}

// New creates a new Handlers instance.
func New(gw *gateway.Gateway, dir *directory.MemoryDirectory, forum contracts.ForumService, m *metrics.Metrics, cookieName string, cookieSecure bool) *Handlers {
	if cookieName == "" {
		cookieName = auth.DefaultCookieName
	}
	return &Handlers{
		Gateway:      gw,
		Directory:    dir,
		Forum:        forum,
		Metrics:      m,
		CookieName:   cookieName,
		CookieSecure: cookieSecure,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Agent Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type registerRequest struct {
	AgentName string `json:"agentName"`
}

// RegisterAgent creates an agent, or returns the existing one for a name
// that is already taken.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reg, err := h.Directory.Register(req.AgentName)
	if errors.Is(err, directory.ErrNameRequired) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to register agent")
		respondError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"agentId":     reg.Record.AgentID,
		"agentName":   reg.Record.AgentName,
		"agentStatus": reg.Record.AgentStatus,
		"apiKey":      reg.Record.APIKey,
		"created":     reg.Created,
	})
}

// IssueIdentityToken exchanges an API key for a bearer identity token.
func (h *Handlers) IssueIdentityToken(w http.ResponseWriter, r *http.Request) {
	issued, ok := h.issue(w, r)
	if !ok {
		return
	}
	h.Metrics.ObserveTokenIssued("bearer")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"identityToken": issued.Token,
		"expiresInMs":   issued.ExpiresIn.Milliseconds(),
	})
}

// CreateSession exchanges an API key for an identity token delivered as
// an httpOnly cookie.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	issued, ok := h.issue(w, r)
	if !ok {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    issued.Token,
		Path:     "/",
		MaxAge:   int(issued.ExpiresIn.Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	h.Metrics.ObserveTokenIssued("cookie")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"expiresInMs": issued.ExpiresIn.Milliseconds(),
	})
}

// DeleteSession clears the session cookie. It needs no credential.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) issue(w http.ResponseWriter, r *http.Request) (*gateway.IssuedToken, bool) {
	cred := auth.ExtractAPIKey(r)
	issued, err := h.Gateway.IssueToken(r.Context(), cred)
	if errors.Is(err, gateway.ErrUnauthorized) {
		respondUnauthorized(w)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue identity token")
		respondError(w, http.StatusInternalServerError, "Internal Server Error")
		return nil, false
	}
	return issued, true
}

// Me returns the caller's identity and moderation state. It consumes no
// quota and answers banned agents too.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	in, ok := h.inspect(w, r)
	if !ok {
		return
	}
	m := in.Moderation
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"agentId":        in.AgentID,
		"agentName":      in.AgentName,
		"agentStatus":    in.AgentStatus,
		"strikes":        m.Strikes,
		"limitedUntilMs": m.LimitedUntilMs,
		"limitedCount":   m.LimitedCount,
		"isBanned":       m.IsBanned,
		"bannedAtMs":     m.BannedAtMs,
	})
}

// MyEvents returns the caller's recent moderation events, oldest first.
func (h *Handlers) MyEvents(w http.ResponseWriter, r *http.Request) {
	in, ok := h.inspect(w, r)
	if !ok {
		return
	}

	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": h.Gateway.Events(in.AgentID, limit),
	})
}

func (h *Handlers) inspect(w http.ResponseWriter, r *http.Request) (*gateway.Inspection, bool) {
	cred := auth.ExtractCredential(r, h.CookieName)
	in, err := h.Gateway.Inspect(r.Context(), cred)
	if err != nil {
		respondUnauthorized(w)
		return nil, false
	}
	return in, true
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="moltboard"`)
	respondError(w, http.StatusUnauthorized, contracts.ReasonUnauthorized)
}
