// Package effects provides the hosts that perform Tern's capability-gated
// effects: OSHost talks to the real process environment and MemoryHost keeps
// everything in memory for tests and embedding.
package effects

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jcgregorio/logger"
	"github.com/jcgregorio/slog"

	"github.com/thomasrohde/tern/pkg/evaluator"
)

// DefaultMaxBody caps the bytes fetch reads from a response body.
const DefaultMaxBody = 8 << 20

// OSHost performs effects against stdio, the local filesystem and the network.
// When Dir is set, paths are rooted there and may not leave it.
type OSHost struct {
	Stdout  io.Writer
	Dir     string
	Client  *http.Client
	MaxBody int64
	Log     slog.Logger

	mu    sync.Mutex
	stdin *bufio.Reader
}

var _ evaluator.Host = (*OSHost)(nil)

// Option configures an OSHost.
type Option func(*OSHost)

// WithStdio replaces the process stdin and stdout.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(h *OSHost) {
		h.stdin = bufio.NewReader(in)
		h.Stdout = out
	}
}

// WithDir roots every filesystem effect at dir.
func WithDir(dir string) Option {
	return func(h *OSHost) { h.Dir = dir }
}

// WithHTTPClient sets the client used by fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(h *OSHost) { h.Client = c }
}

// WithLogger sets the logger used for effect debug output.
func WithLogger(l slog.Logger) Option {
	return func(h *OSHost) { h.Log = l }
}

// NewOSHost returns a host bound to the process stdio.
func NewOSHost(opts ...Option) *OSHost {
	h := &OSHost{
		Stdout:  os.Stdout,
		Client:  &http.Client{Timeout: 30 * time.Second},
		MaxBody: DefaultMaxBody,
		Log:     logger.NewNopLogger(),
		stdin:   bufio.NewReader(os.Stdin),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Print writes text to Stdout.
func (h *OSHost) Print(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.Stdout, text)
	return err
}

// Input reads one line from stdin.
func (h *OSHost) Input(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	line, err := h.stdin.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
