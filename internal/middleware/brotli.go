package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes the response compression middleware.
type BrotliConfig struct {
	// Quality is the brotli compression level, 0..11.
	Quality int
	// MinLength is the smallest body size worth compressing. Responses
	// below it pass through untouched.
	MinLength int
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// brotliWriter buffers the response until MinLength bytes have been written;
// short bodies are flushed uncompressed, longer ones switch to the brotli
// stream. The switch happens at most once per response.
type brotliWriter struct {
	gin.ResponseWriter
	br         *brotli.Writer
	buf        []byte
	minLength  int
	engage     sync.Once
	compressed bool
}

func (w *brotliWriter) Write(data []byte) (int, error) {
	w.buf = append(w.buf, data...)
	if len(w.buf) < w.minLength {
		return len(data), nil
	}

	w.engage.Do(func() {
		w.compressed = true
		h := w.ResponseWriter.Header()
		h.Set("Content-Encoding", "br")
		h.Del("Content-Length")
	})
	n, err := w.br.Write(w.buf)
	w.buf = w.buf[:0]
	return n, err
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// finish drains whatever is still buffered. A body that never reached
// MinLength goes out as plain bytes.
func (w *brotliWriter) finish() error {
	if len(w.buf) == 0 {
		return nil
	}
	var err error
	if w.compressed {
		_, err = w.br.Write(w.buf)
	} else {
		_, err = w.ResponseWriter.Write(w.buf)
	}
	w.buf = w.buf[:0]
	return err
}

// Brotli compresses responses for clients that advertise br support.
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < 0 || cfg.Quality > 11 {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		// WebSocket upgrades must not be wrapped; the handshake breaks
		// if the hijacked response goes through a buffering writer.
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		w := &brotliWriter{
			ResponseWriter: c.Writer,
			br:             brotli.NewWriterLevel(c.Writer, cfg.Quality),
			minLength:      cfg.MinLength,
		}
		c.Writer = w

		defer func() {
			if err := w.finish(); err != nil {
				_ = c.Error(err)
			}
			if w.compressed {
				w.br.Close()
			}
		}()

		c.Next()
	}
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
