package effects

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/thomasrohde/tern/pkg/evaluator"
)

// Response is a canned fetch result for a MemoryHost.
type Response struct {
	Status int
	Body   string
}

// MemoryHost keeps stdio, files and network responses in memory. Every
// effect performed is appended to Calls, so tests can assert that a denied
// effect never reached the host.
type MemoryHost struct {
	mu        sync.Mutex
	output    strings.Builder
	input     []string
	files     map[string]string
	responses map[string]Response
	calls     []string
}

var _ evaluator.Host = (*MemoryHost)(nil)

// NewMemoryHost returns an empty in-memory host.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{
		files:     map[string]string{},
		responses: map[string]Response{},
	}
}

// SetInput queues lines for input().
func (h *MemoryHost) SetInput(lines ...string) *MemoryHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.input = append(h.input, lines...)
	return h
}

// SetFile creates or replaces a file.
func (h *MemoryHost) SetFile(name, text string) *MemoryHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[path.Clean(name)] = text
	return h
}

// SetResponse registers the answer fetch gives for url.
func (h *MemoryHost) SetResponse(url string, status int, body string) *MemoryHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses[url] = Response{Status: status, Body: body}
	return h
}

// Output returns everything printed so far.
func (h *MemoryHost) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.output.String()
}

// File returns a file's contents.
func (h *MemoryHost) File(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	text, ok := h.files[path.Clean(name)]
	return text, ok
}

// Calls returns the names of the effects performed, in order.
func (h *MemoryHost) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *MemoryHost) record(name string) {
	h.calls = append(h.calls, name)
}

func (h *MemoryHost) Print(_ context.Context, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("print")
	h.output.WriteString(text)
	return nil
}

func (h *MemoryHost) Input(_ context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("input")
	if len(h.input) == 0 {
		return "", io.EOF
	}
	line := h.input[0]
	h.input = h.input[1:]
	return line, nil
}

func (h *MemoryHost) ReadFile(_ context.Context, name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("readFile")
	text, ok := h.files[path.Clean(name)]
	if !ok {
		return "", errors.Wrapf(os.ErrNotExist, "readFile %s", name)
	}
	return text, nil
}

func (h *MemoryHost) WriteFile(_ context.Context, name, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("writeFile")
	h.files[path.Clean(name)] = text
	return nil
}

// ListDir lists the direct children of dir; subdirectories carry a trailing
// slash.
func (h *MemoryHost) ListDir(_ context.Context, dir string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("listDir")
	prefix := path.Clean(dir) + "/"
	if prefix == "./" {
		prefix = ""
	}
	seen := map[string]bool{}
	for name := range h.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = true
	}
	if len(seen) == 0 {
		return nil, errors.Wrapf(os.ErrNotExist, "listDir %s", dir)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (h *MemoryHost) FileExists(_ context.Context, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("fileExists")
	clean := path.Clean(name)
	if _, ok := h.files[clean]; ok {
		return true, nil
	}
	for f := range h.files {
		if strings.HasPrefix(f, clean+"/") {
			return true, nil
		}
	}
	return false, nil
}

func (h *MemoryHost) Fetch(ctx context.Context, url string) (int, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("fetch")
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	resp, ok := h.responses[url]
	if !ok {
		return 404, "", nil
	}
	return resp.Status, resp.Body, nil
}
