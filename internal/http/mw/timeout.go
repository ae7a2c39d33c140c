package mw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// panicWithStack captures a panic value along with its stack trace.
type panicWithStack struct {
	value interface{}
	stack []byte
}

// TimeoutConfig defines timeout behavior for different path suffixes.
type TimeoutConfig struct {
	// Default timeout for most endpoints
	Default time.Duration
	// Extended timeout for conversation turns that may call the language model
	// or the payment gateway.
	Extended time.Duration
	// Path suffixes that get the extended timeout (e.g. "/message", "/action")
	ExtendedSuffixes []string
}

// DefaultTimeoutConfig returns the timeouts used by the API server.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Default:          30 * time.Second,
		Extended:         60 * time.Second,
		ExtendedSuffixes: []string{"/message", "/checkout", "/action"},
	}
}

// timeoutFor picks the timeout for a request path.
func (c TimeoutConfig) timeoutFor(path string) time.Duration {
	path = strings.TrimSuffix(path, "/")
	for _, suffix := range c.ExtendedSuffixes {
		if strings.HasSuffix(path, suffix) {
			return c.Extended
		}
	}
	return c.Default
}

// timeoutWriter drops writes from the handler once the deadline response has
// been sent.
type timeoutWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	timedOut    bool
	wroteHeader bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.wroteHeader = true
	return tw.ResponseWriter.Write(b)
}

// expire writes the 504 unless the handler already started a response.
func (tw *timeoutWriter) expire() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.wroteHeader {
		tw.timedOut = true
		return
	}
	tw.timedOut = true
	tw.ResponseWriter.Header().Set("Content-Type", "application/problem+json")
	tw.ResponseWriter.WriteHeader(http.StatusGatewayTimeout)
	_, _ = tw.ResponseWriter.Write([]byte(`{"title":"Gateway Timeout","status":504,"detail":"the request took too long, please try again"}`))
}

// Timeout returns a middleware that applies configurable timeouts to requests.
// Paths ending in one of ExtendedSuffixes get the Extended timeout, all
// others the Default. Conversation turns detach from the request context, so
// a timed out turn still completes and persists; the client re-reads state.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), cfg.timeoutFor(r.URL.Path))
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w}
			done := make(chan struct{})
			panicChan := make(chan *panicWithStack, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- &panicWithStack{
							value: p,
							stack: debug.Stack(),
						}
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
				return
			case p := <-panicChan:
				// Re-panic so the Recoverer middleware reports the original stack.
				panic(fmt.Sprintf("%v\n\nOriginal stack trace:\n%s", p.value, p.stack))
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					tw.expire()
				}
			}
		})
	}
}
