package http

import (
	"net/http"

	"fintrack/internal/session"
	"fintrack/internal/viewstate"
)

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req transactionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := req.toTransaction()
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := sess.Controller.AddTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleEditTransaction replaces the editable fields. occurredAt in the body
// is ignored: edits keep the original time.
func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req transactionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := req.toTransaction()
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.synced(r.Context(), sess)
	edited, err := sess.Controller.EditTransaction(r.Context(), r.PathValue("id"), viewstate.Changes{
		Amount:      t.Amount,
		Description: t.Description,
		Category:    t.Category,
		Kind:        t.Kind,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edited)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Controller.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBeginEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.synced(r.Context(), sess)
	if err := sess.Controller.BeginEdit(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(sess.View(), sess.Prefs.Snapshot()))
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Controller.CancelEdit(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
