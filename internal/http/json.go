package httpx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/target/lessonhub/internal/errors"
	obserrors "github.com/target/lessonhub/internal/observability/errors"
	"github.com/target/lessonhub/internal/observability/statsd"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]any{"error": p.ErrCode}
	if p.Err != nil {
		body["message"] = p.Err.Error()
		if msgs := apperrors.Messages(p.Err); len(msgs) > 1 {
			body["details"] = msgs
		}
	}
	WriteJSON(w, p.Code, body)
}

// ErrorResponder renders unexpected failures. Outside development the client
// only ever sees an opaque 500.
type ErrorResponder struct {
	IsDev   bool
	Logger  *slog.Logger
	Metrics statsd.Sink // optional
}

// ServerError logs err and writes a 500 response.
func (e ErrorResponder) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	if e.Metrics != nil {
		e.Metrics.Count("http.server_error", 1, map[string]string{"error_type": obserrors.Classify(err)})
	}

	body := map[string]string{"error": "Server Error"}
	if e.IsDev && err != nil {
		body["message"] = err.Error()
	}
	WriteJSON(w, http.StatusInternalServerError, body)
}
