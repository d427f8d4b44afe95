package middleware

import (
	"encoding/json"
	"net/http"
)

// JSON-RPC error codes written by middleware before a request reaches a
// handler.
const (
	CodeUnauthorized = -32001
	CodeRateLimited  = -32020
)

type errorBody struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Error   errorObject `json:"error"`
}

type errorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a JSON-RPC error envelope with a null id.
func WriteError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{JSONRPC: "2.0", Error: errorObject{Code: code, Message: message}})
}
