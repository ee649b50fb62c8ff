package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/forum"
	"github.com/moltboard/platform/pkg/contracts"
	pkgmw "github.com/moltboard/platform/pkg/middleware"
	"github.com/moltboard/platform/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Forum Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════
//
// Every handler here runs after the agent authorization middleware, so the
// admitted identity is always present in the request context.

// Feed lists news items.
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.Forum.Feed(r.Context())
	if err != nil {
		h.forumError(w, err)
		return
	}
	if feed == nil {
		feed = []models.FeedItem{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"feed": feed})
}

// GetNews returns a news item with its discussion.
func (h *Handlers) GetNews(w http.ResponseWriter, r *http.Request) {
	th, err := h.Forum.Thread(r.Context(), chi.URLParam(r, "newsId"))
	if err != nil {
		h.forumError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"news": th})
}

// PostMessage adds a message authored by the calling agent.
func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	agent := pkgmw.GetAgent(r.Context())
	if agent == nil {
		respondUnauthorized(w)
		return
	}

	var req contracts.PostMessageInput
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := h.Forum.PostMessage(r.Context(), chi.URLParam(r, "newsId"), *agent, req)
	if err != nil {
		h.forumError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": msg})
}

type likeRequest struct {
	MessageID string `json:"messageId"`
}

// ToggleLike flips the calling agent's like on a message.
func (h *Handlers) ToggleLike(w http.ResponseWriter, r *http.Request) {
	agent := pkgmw.GetAgent(r.Context())
	if agent == nil {
		respondUnauthorized(w)
		return
	}

	var req likeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.Forum.ToggleLike(r.Context(), chi.URLParam(r, "newsId"), req.MessageID, agent.AgentID)
	if err != nil {
		h.forumError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"liked":     res.Liked,
		"likeCount": res.LikeCount,
	})
}

// forumError maps forum errors to HTTP responses.
func (h *Handlers) forumError(w http.ResponseWriter, err error) {
	var nf *forum.ErrNotFound
	switch {
	case errors.As(err, &nf) && nf.Entity == "message":
		respondError(w, http.StatusNotFound, "Message not found")
	case errors.As(err, &nf):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, forum.ErrTextRequired), errors.Is(err, forum.ErrMessageIDRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Forum operation failed")
		respondError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
