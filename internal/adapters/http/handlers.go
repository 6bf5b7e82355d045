package http

import (
	"net/http"
	"strings"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) tokenStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.TokenStatus(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "token_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

func (h *Handler) tokenRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RefreshToken(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "token_refresh", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "message_id")
	if err != nil {
		writeValidationError(r.Context(), w, "get_message", err)
		return
	}

	view, err := h.service.GetMessage(r.Context(), id)
	if err != nil {
		writeMappedError(r.Context(), w, "get_message", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	status := domain.MessageStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)

	views, err := h.service.ListMessages(r.Context(), status, limit)
	if err != nil {
		writeMappedError(r.Context(), w, "list_messages", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"messages": views,
		"count":    len(views),
	})
}

func (h *Handler) messageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.MessageStats(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "message_stats", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"counts": stats,
	})
}

func (h *Handler) replayMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "message_id")
	if err != nil {
		writeValidationError(r.Context(), w, "replay_message", err)
		return
	}

	view, err := h.service.ReplayMessage(r.Context(), id)
	if err != nil {
		writeMappedError(r.Context(), w, "replay_message", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}
