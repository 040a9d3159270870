package gateway

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the JSON body written for any non-2xx gateway
// response.
type errorEnvelope struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// WriteJSONError writes a standard error envelope with the given status.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Status: "error", Error: message})
}

// WriteJSON writes data as a 200 JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteOK writes the plain-text "OK" body spec §4.9 expects for
// archive_key and delete_key success.
func WriteOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
