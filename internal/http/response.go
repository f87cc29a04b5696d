package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/prefs"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields []core.FieldError `json:"fields,omitempty"`
}

type authResponse struct {
	Token   string      `json:"token"`
	Owner   *core.Owner `json:"owner"`
	Warning string      `json:"warning,omitempty"`
}

type viewResponse struct {
	core.ViewState
	CurrencyCode   string `json:"currencyCode"`
	BalanceDisplay string `json:"balanceDisplay"`
}

type prefsResponse struct {
	core.Preferences
	CurrencySymbol string `json:"currencySymbol"`
}

func newViewResponse(vs core.ViewState, p core.Preferences) viewResponse {
	return viewResponse{
		ViewState:      vs,
		CurrencyCode:   p.CurrencyCode,
		BalanceDisplay: prefs.FormatAmount(vs.Balance, p.CurrencyCode),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and hides their detail from clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Errors
	}
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err)
		body = errorBody{Error: "internal error"}
	}
	writeJSON(w, status, body)
}
