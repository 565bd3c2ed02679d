package httpx

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"filippo.io/csrf"
	"github.com/target/lessonhub/internal/observability/statsd"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware so the first one listed is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Metrics records request latency tagged with method and status class.
func Metrics(sink statsd.Sink) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			sink.Timing("http.request", time.Since(start), map[string]string{
				"method": r.Method,
				"status": strconv.Itoa(ww.status/100) + "xx",
			})
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler { //nolint:errorlint // sentinel panics are compared directly
						panic(err)
					}
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the framing, XSS and sniffing headers on every response.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	}
}

// CrossOriginProtection rejects cross-origin state-changing browser requests
// using Fetch metadata. It runs in front of the session-bound token check.
func CrossOriginProtection(trustedOrigins []string, logger *slog.Logger) (Middleware, error) {
	protection := csrf.New()
	for _, origin := range trustedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("trusted origin %q: %w", origin, err)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := protection.Check(r); err != nil {
				logger.WarnContext(r.Context(), "cross-origin request rejected",
					"method", r.Method,
					"path", r.URL.Path,
					"reason", err,
				)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	Level   int // gzip level; 0 means gzip.DefaultCompression
	MinSize int // responses shorter than this are sent as is
	Logger  *slog.Logger
}

var compressibleTypes = map[string]bool{
	"application/json": true,
	"text/html":        true,
	"text/plain":       true,
	"text/css":         true,
	"image/svg+xml":    true,
}

// Compression returns a middleware that gzips compressible responses for
// clients that accept it.
func Compression(cfg CompressionConfig) Middleware {
	if cfg.Level == 0 {
		cfg.Level = gzip.DefaultCompression
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pool := &sync.Pool{New: func() any {
		zw, err := gzip.NewWriterLevel(io.Discard, cfg.Level)
		if err != nil {
			return gzip.NewWriter(io.Discard)
		}
		return zw
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")

			gzw := &gzipResponseWriter{ResponseWriter: w, pool: pool, minSize: cfg.MinSize}
			next.ServeHTTP(gzw, r)
			if err := gzw.finish(); err != nil {
				cfg.Logger.ErrorContext(r.Context(), "closing gzip writer failed", "error", err)
			}
		})
	}
}

// acceptsGzip checks if the client accepts gzip encoding, honouring q=0.
func acceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			continue
		}
		q := strings.ReplaceAll(params, " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

func isCompressibleContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return compressibleTypes[strings.TrimSpace(strings.ToLower(mediaType))]
}

// gzipResponseWriter buffers up to minSize bytes before deciding whether to compress.
type gzipResponseWriter struct {
	http.ResponseWriter
	pool    *sync.Pool
	minSize int

	status   int
	decided  bool
	buf      []byte
	zw       *gzip.Writer
	finished bool
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified ||
		w.Header().Get("Content-Encoding") != "" {
		w.decide(false)
	}
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if w.decided {
		if w.zw != nil {
			return w.zw.Write(b)
		}
		return w.ResponseWriter.Write(b)
	}

	w.buf = append(w.buf, b...)
	if len(w.buf) >= w.minSize {
		if err := w.flushBuffered(); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// decide commits the headers, with or without compression.
func (w *gzipResponseWriter) decide(compress bool) {
	if w.decided {
		return
	}
	w.decided = true
	if w.Header().Get("Content-Type") == "" && len(w.buf) > 0 {
		w.Header().Set("Content-Type", http.DetectContentType(w.buf))
	}
	if compress && isCompressibleContentType(w.Header().Get("Content-Type")) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
		zw, _ := w.pool.Get().(*gzip.Writer)
		if zw == nil {
			zw = gzip.NewWriter(w.ResponseWriter)
		}
		zw.Reset(w.ResponseWriter)
		w.zw = zw
	}
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *gzipResponseWriter) flushBuffered() error {
	w.decide(true)
	buf := w.buf
	w.buf = nil
	if len(buf) == 0 {
		return nil
	}
	var err error
	if w.zw != nil {
		_, err = w.zw.Write(buf)
	} else {
		_, err = w.ResponseWriter.Write(buf)
	}
	return err
}

// finish sends whatever is buffered and returns the gzip writer to the pool.
func (w *gzipResponseWriter) finish() error {
	if w.finished {
		return nil
	}
	w.finished = true

	var err error
	if !w.decided {
		if w.status == 0 && len(w.buf) == 0 {
			// Handler wrote nothing; let net/http send its implicit 200.
			return nil
		}
		// Below the threshold: send uncompressed.
		w.decide(false)
		if len(w.buf) > 0 {
			_, err = w.ResponseWriter.Write(w.buf)
			w.buf = nil
		}
	}
	if w.zw != nil {
		if closeErr := w.zw.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		w.zw.Reset(io.Discard)
		w.pool.Put(w.zw)
		w.zw = nil
	}
	return err
}

// Flush implements http.Flusher for streaming support.
func (w *gzipResponseWriter) Flush() {
	if !w.decided {
		_ = w.flushBuffered()
	}
	if w.zw != nil {
		_ = w.zw.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker.
func (w *gzipResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("http.Hijacker not supported")
}
