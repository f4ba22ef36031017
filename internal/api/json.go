package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tracecore/tracecore/internal/apierr"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	se := apierr.As(err)
	if se == nil {
		se = apierr.Internal("unexpected error", err)
	}
	writeJSON(w, se.HTTPStatus, se)
}
