package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// ErrBodyTooLarge is returned by DecodeJSON when MaxBytesMiddleware cut the body short
var ErrBodyTooLarge = errors.New("request body too large")

// DecodeJSON reads a single JSON value from the request body into dest.
// An absent or empty body leaves dest untouched.
func DecodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dest)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON value")
	}

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, tooLarge.Limit)
	default:
		return fmt.Errorf("invalid JSON: %w", err)
	}
}

// BindJSON decodes the body into dest. On failure it writes a 400, or a 413
// for oversized bodies, and returns false.
func BindJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := DecodeJSON(r, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrBodyTooLarge):
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		WriteBadRequest(w, err.Error())
	}
	return false
}

// PathParam returns the named route variable, writing a 400 when it is empty
func PathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	if v := mux.Vars(r)[key]; v != "" {
		return v, true
	}
	WriteBadRequest(w, fmt.Sprintf("missing path parameter: %s", key))
	return "", false
}

// QueryParam returns the first value of the query parameter key, or fallback
func QueryParam(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}
