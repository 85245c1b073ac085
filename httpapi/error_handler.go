package httpapi

import (
	"encoding/json"
	"net/http"
)

//ErrorResponse represents an HTTP error
type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

//writeJSON writes body as JSON with the given status code
func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

//handleError writes an ErrorResponse for the given code
func handleError(w http.ResponseWriter, code int) {
	writeJSON(w, code, &ErrorResponse{Code: code, Error: http.StatusText(code)})
}

//notFoundHandler writes a 404 ErrorResponse
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handleError(w, http.StatusNotFound)
}

//methodNotAllowedHandler writes a 405 ErrorResponse
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	handleError(w, http.StatusMethodNotAllowed)
}
