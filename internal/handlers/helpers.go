package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/specula/internal/common"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes a success envelope around the payload.
func WriteData(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// WriteMessage writes a success envelope with a message only.
func WriteMessage(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// WriteError writes a failure envelope.
func WriteError(w http.ResponseWriter, statusCode int, message string, detail ...string) error {
	body := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if len(detail) > 0 && detail[0] != "" {
		body["detail"] = detail[0]
	}
	return WriteJSON(w, statusCode, body)
}

// WriteServiceError maps domain errors onto HTTP statuses: bad input 400,
// absent artifacts 404, everything else 500 with the message passed through.
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case common.IsValidation(err):
		return WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrCancelled):
		return WriteError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		return WriteError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// QueryDate parses a YYYY-MM-DD query parameter, defaulting to today.
// The bool result is false when the value is present but malformed.
func QueryDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Now(), true
	}
	date, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid date "+strconv.Quote(raw)+", expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

// QueryInt parses an integer query parameter with a default
func QueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// QueryFloat parses a float query parameter with a default
func QueryFloat(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// QueryBool reports whether a query flag is set to a truthy value
func QueryBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// PathSegment returns the idx-th segment of the path after the prefix,
// or "" when absent. PathSegment("/api/v1/stocks/005930/price",
// "/api/v1/stocks/", 0) is "005930".
func PathSegment(path, prefix string, idx int) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	parts := strings.Split(strings.Trim(path[len(prefix):], "/"), "/")
	if idx >= len(parts) {
		return ""
	}
	return parts[idx]
}

// ValidTicker screens the 6-digit KRX ticker format
func ValidTicker(ticker string) bool {
	if len(ticker) != 6 {
		return false
	}
	for _, c := range ticker {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
