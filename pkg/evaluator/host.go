package evaluator

import "context"

// Host performs the effects behind the capability-gated builtins. The
// evaluator checks the profile before any Host method is called, so a Host
// never has to enforce capabilities itself.
type Host interface {
	Print(ctx context.Context, text string) error
	// Input returns the next line without its terminator; io.EOF at end of input.
	Input(ctx context.Context) (string, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, text string) error
	ListDir(ctx context.Context, path string) ([]string, error)
	FileExists(ctx context.Context, path string) (bool, error)
	Fetch(ctx context.Context, url string) (status int, body string, err error)
}
