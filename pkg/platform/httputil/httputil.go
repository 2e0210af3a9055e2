// Package httputil holds the JSON envelope helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "mantrip/pkg/domain-errors"
)

// Envelope is the wire shape of every attendance API response.
type Envelope struct {
	Success          bool   `json:"success"`
	Data             any    `json:"data,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a successful envelope around data.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteError translates a domain error into a failed envelope. Internal errors
// never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	env := Envelope{Success: false, Error: string(code)}
	if code != dErrors.CodeInternal {
		env.ErrorDescription = err.Error()
		var de *dErrors.Error
		if errors.As(err, &de) {
			env.ErrorDescription = de.Message
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), env)
}
