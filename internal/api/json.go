package api

import (
	"encoding/json"
	"io"
	"net/http"
)

// Envelope is the success response wrapper: {"data": ...}. The mobile
// client unwraps the data field on every endpoint.
type Envelope struct {
	Data any `json:"data"`
}

func DecodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func WriteJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func WriteJSONWithStatus(w http.ResponseWriter, v any, code int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, v any) error {
	return WriteJSON(w, Envelope{Data: v})
}

func WriteDataWithStatus(w http.ResponseWriter, v any, code int) error {
	return WriteJSONWithStatus(w, Envelope{Data: v}, code)
}
