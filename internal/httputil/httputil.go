package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

const maxJSONBody = 1 << 20

var (
	ErrInvalidBody = fmt.Errorf("request body is not valid json")
)

type errorBody struct {
	Error string `json:"error"`
}

func WriteJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("content-type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		panic(fmt.Errorf("httputil.WriteJSON: %w", err))
	}
}

func Error(rw http.ResponseWriter, status int, message string) {
	WriteJSON(rw, status, errorBody{Error: message})
}

func Errorf(rw http.ResponseWriter, status int, format string, args ...interface{}) {
	Error(rw, status, fmt.Sprintf(format, args...))
}

func NotFound(rw http.ResponseWriter, r *http.Request) {
	Error(rw, http.StatusNotFound, "not found")
}

func BadRequest(rw http.ResponseWriter, message string) {
	Error(rw, http.StatusBadRequest, message)
}

func NoContent(rw http.ResponseWriter) {
	rw.WriteHeader(http.StatusNoContent)
}

// ReadJSON decodes the request body into v. An empty body leaves v alone.
func ReadJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}

		return fmt.Errorf("%w: %s", ErrInvalidBody, err.Error())
	}

	return nil
}

// IntVar reads a numeric route variable. Routes constrain ids to digits so
// this only fails on overflow.
func IntVar(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, false
	}

	return v, true
}
