package http

import (
	"net/http"

	"fintrack/internal/prefs"
)

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prefsBody())
}

// handlePutPrefs applies only the fields present in the body.
func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	var req prefsRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	store := s.sessions.Prefs()
	if req.DarkTheme != nil {
		if err := store.SetDarkTheme(*req.DarkTheme); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.CurrencyCode != nil {
		if err := store.SetCurrencyCode(*req.CurrencyCode); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.prefsBody())
}

func (s *Server) prefsBody() prefsResponse {
	p := s.sessions.Prefs().Snapshot()
	return prefsResponse{Preferences: p, CurrencySymbol: prefs.CurrencySymbol(p.CurrencyCode)}
}
