// Package ledger records payment gateway calls so failed deliveries can be
// inspected after the fact.
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	ledgerstore "github.com/consistencygrid/consistencygrid/internal/app/store/ledger"
	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/metrics"
	"github.com/consistencygrid/consistencygrid/internal/app/system/network"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxCapture bounds how much of a request body is buffered for hashing.
const maxCapture = 64 << 10

// Config controls what the recorder keeps.
type Config struct {
	Store  *ledgerstore.Store
	Logger *zap.Logger

	// PreviewBytes caps the stored body preview. 0 disables body capture.
	PreviewBytes int

	// Headers lists request headers to keep. Authorization is redacted.
	Headers []string

	// OnlyErrors skips calls answered below 400.
	OnlyErrors bool

	// Async writes entries off the request goroutine.
	Async bool

	Clock clock.Clock
}

// DefaultConfig is the webhook configuration.
func DefaultConfig(store *ledgerstore.Store, logger *zap.Logger) Config {
	return Config{
		Store:        store,
		Logger:       logger,
		PreviewBytes: 500,
		Headers:      []string{"Content-Type", "User-Agent", "X-Request-ID", "Authorization"},
		Async:        true,
	}
}

type body struct {
	size     int64
	hash     string
	preview  string
	orderRef string
}

// capture buffers up to maxCapture bytes of r's body, restores it for the
// handler and summarizes what it saw.
func capture(r *http.Request, previewBytes int) body {
	if previewBytes <= 0 || r.Body == nil {
		return body{}
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxCapture))
	if err != nil {
		return body{}
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}

	if len(buf) == 0 {
		return body{}
	}
	sum := sha256.Sum256(buf)
	b := body{size: int64(len(buf)), hash: hex.EncodeToString(sum[:4]), preview: string(buf)}
	if len(b.preview) > previewBytes {
		b.preview = cutRunes(b.preview, previewBytes) + "..."
	}
	var peek struct {
		OrderRef string `json:"orderRef"`
	}
	if json.Unmarshal(buf, &peek) == nil {
		b.orderRef = peek.OrderRef
	}
	return b
}

// cutRunes returns at most n bytes of s without splitting a UTF-8 sequence.
func cutRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Middleware records each request and echoes its ledger ID in X-Request-ID.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	c := clock.OrReal(cfg.Clock)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			started := c.Now()
			in := capture(r, cfg.PreviewBytes)

			w.Header().Set("X-Request-ID", requestID)
			rw := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if cfg.OnlyErrors && rw.status < 400 {
				return
			}
			done := c.Now()
			entry := ledgerstore.Entry{
				RequestID:       requestID,
				ClientRequestID: r.Header.Get("X-Request-ID"),
				OrderRef:        in.orderRef,
				Method:          r.Method,
				Path:            r.URL.Path,
				Headers:         pickHeaders(r.Header, cfg.Headers),
				RemoteIP:        network.ClientIP(r),
				BodySize:        in.size,
				BodyHash:        in.hash,
				BodyPreview:     in.preview,
				StatusCode:      rw.status,
				ResponseSize:    rw.written,
				ErrorClass:      classify(rw.status),
				DurationMs:      float64(done.Sub(started).Microseconds()) / 1000,
				StartedAt:       started,
				CompletedAt:     done,
			}

			if cfg.Async {
				go write(cfg, entry)
				return
			}
			write(cfg, entry)
		})
	}
}

func write(cfg Config, entry ledgerstore.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cfg.Store.Create(ctx, entry)
	metrics.WebhookCall(entry.ErrorClass, err == nil)
	if err != nil && cfg.Logger != nil {
		cfg.Logger.Error("failed to store ledger entry",
			zap.String("request_id", entry.RequestID),
			zap.String("order_ref", entry.OrderRef),
			zap.Error(err))
	}
}

func pickHeaders(h http.Header, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if strings.EqualFold(name, "Authorization") {
			v = "[redacted]"
		}
		out[name] = v
	}
	return out
}

// classify buckets an error status for filtering and metrics.
func classify(status int) string {
	switch {
	case status < 400:
		return ""
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return "validation"
	case status == http.StatusUnauthorized:
		return "auth"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "internal"
	}
	return "client_error"
}

type recorder struct {
	http.ResponseWriter
	status  int
	written int64
	wrote   bool
}

func (rw *recorder) WriteHeader(code int) {
	if !rw.wrote {
		rw.status = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	rw.wrote = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
