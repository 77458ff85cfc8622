package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ktiyab/coheara/internal/coherr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    coherr.Code `json:"code"`
	Message string      `json:"message"`
}

// writeError maps err through coherr.HTTPStatus and writes the spec §6
// error envelope: {"error":{"code":"UPPER_SNAKE","message":"..."}}.
func writeError(w http.ResponseWriter, err error) {
	status, code, msg := coherr.HTTPStatus(err)
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
