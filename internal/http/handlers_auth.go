package http

import (
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

// authed resolves the bearer token to a session before calling next.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Lookup(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := r.Context()
		if owner := sess.Owner(); owner != nil {
			ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldOwnerID, owner.ID))
		}
		next(w, r.WithContext(ctx), sess)
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess := s.sessions.Open()
	res := sess.Provider.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	s.finishAuth(w, r, sess, res, http.StatusCreated)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess := s.sessions.Open()
	res := sess.Provider.SignIn(r.Context(), req.Email, req.Password)
	s.finishAuth(w, r, sess, res, http.StatusOK)
}

// finishAuth registers the session when the result carries an owner. A
// partial sign-up is still a session; its reason goes out as a warning.
func (s *Server) finishAuth(w http.ResponseWriter, r *http.Request, sess *session.Session, res identity.Result, status int) {
	if res.Owner == nil {
		sess.Close()
		writeJSON(w, authStatus(res.Err), errorBody{Error: res.Reason()})
		return
	}

	token := s.sessions.Register(sess)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "session ended"})
		return
	}
	body := authResponse{Token: token, Owner: res.Owner}
	if !res.OK() {
		body.Warning = res.Reason()
	}
	writeJSON(w, status, body)
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	token := sess.Provider.Token()
	err := sess.Provider.SignOut(r.Context())
	s.sessions.Forget(token)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Sign-out could not revoke the session", log.FieldError, err)
	}
	w.WriteHeader(http.StatusNoContent)
}
