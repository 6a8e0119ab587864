package server

import (
	"errors"
	"net/http"

	"github.com/bobmcallan/sift/internal/models"
	"github.com/bobmcallan/sift/internal/services/screen"
)

// handleScreenDecline handles GET /api/screen/decline
func (s *Server) handleScreenDecline(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	params := models.DeclineScreenParams{
		Start: r.URL.Query().Get("start"),
		Index: r.URL.Query().Get("index"),
		Limit: QueryInt(r, "limit", 0),
	}

	resp, err := s.app.ScreenService.ScreenDecline(r.Context(), params)
	if err != nil {
		writeScreenError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// handleScreenPattern handles GET /api/screen/pattern
func (s *Server) handleScreenPattern(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	params := models.PatternScreenParams{
		Index: r.URL.Query().Get("index"),
		Limit: QueryInt(r, "limit", 0),
	}

	resp, err := s.app.ScreenService.ScreenPattern(r.Context(), params)
	if err != nil {
		writeScreenError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// writeScreenError maps screen service errors to HTTP status codes.
func writeScreenError(w http.ResponseWriter, err error) {
	if errors.Is(err, screen.ErrRateLimited) {
		WriteErrorWithCode(w, http.StatusTooManyRequests, err.Error(), "rate_limited")
		return
	}
	// Anything else from the service is parameter validation.
	WriteError(w, http.StatusBadRequest, err.Error())
}
