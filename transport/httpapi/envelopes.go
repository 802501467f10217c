package httpapi

import (
	"encoding/json"
	"net/http"

	goRecover "github.com/MrEthical07/goRecover"
)

// MessageEnvelope is the success reply. Message is a string for most
// flows and a [goRecover.LoginResult] for login.
type MessageEnvelope struct {
	Message any `json:"message"`
}

// PayloadEnvelope carries the capability token returned by
// verify-reset-code.
type PayloadEnvelope struct {
	Payload string `json:"payload"`
}

// ErrorEnvelope is the failure reply. Code is an error kind, or
// "BadRequest" when the request body itself is unusable.
type ErrorEnvelope struct {
	ServerError string `json:"serverError"`
	Code        string `json:"code"`
}

const codeBadRequest = "BadRequest"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorEnvelope{ServerError: msg, Code: codeBadRequest})
}

// writeError replies with the status and fixed message of err's kind.
// The error text itself is never written.
func writeError(w http.ResponseWriter, err error) {
	kind := goRecover.KindOf(err)
	writeJSON(w, StatusOf(kind), ErrorEnvelope{ServerError: messageOf(kind), Code: string(kind)})
}
