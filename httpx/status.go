package httpx

import "net/http"

const (
	StatusOK                 = http.StatusOK                  // Successful request
	StatusNoContent          = http.StatusNoContent           // Successful with no body
	StatusBadRequest         = http.StatusBadRequest          // Malformed input
	StatusUnauthorized       = http.StatusUnauthorized        // Missing or invalid token
	StatusNotFound           = http.StatusNotFound            // Key or route not found
	StatusInternalError      = http.StatusInternalServerError // Backend failure
	StatusServiceUnavailable = http.StatusServiceUnavailable  // Server shutting down
)
