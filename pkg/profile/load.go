package profile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/diagnostics"
)

// Format is a profile file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.Errorf("unsupported profile extension %q", filepath.Ext(path))
}

// Project and user profile locations, in lookup order.
var (
	ProjectFiles = []string{".tern.toml", ".tern.yaml", ".tern.yml", ".tern.json"}
	UserFiles    = []string{"profile.toml", "profile.yaml", "profile.yml", "profile.json"}
	UserDir      = ".tern"
)

// file is the on-disk shape. Allow and Deny are applied on top of the
// capabilities table, deny last.
type file struct {
	MaxStackDepth *int         `json:"max_stack_depth" yaml:"max_stack_depth" toml:"max_stack_depth"`
	MaxHeapSize   *int         `json:"max_heap_size" yaml:"max_heap_size" toml:"max_heap_size"`
	MaxTimeMs     *int64       `json:"max_time_ms" yaml:"max_time_ms" toml:"max_time_ms"`
	Capabilities  Capabilities `json:"capabilities" yaml:"capabilities" toml:"capabilities"`
	Allow         []string     `json:"allow" yaml:"allow" toml:"allow"`
	Deny          []string     `json:"deny" yaml:"deny" toml:"deny"`
}

// tomlSettings rejects keys that do not map onto a profile field.
var tomlSettings = func() toml.Config {
	cfg := toml.DefaultConfig
	cfg.MissingField = func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not a profile setting", field)
	}
	return cfg
}()

// LoadError reports a profile file that exists but cannot be used.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("profile %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Diagnostic converts the error into an E_PROFILE diagnostic.
func (e *LoadError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EProfile, e.Error(), &ast.Pos{File: e.Path},
		"see 'tern profile' for the recognised settings")
}

// Decode reads one profile document.
func Decode(r io.Reader, format Format) (*Profile, error) {
	var f file
	switch format {
	case FormatTOML:
		if err := tomlSettings.NewDecoder(bufio.NewReader(r)).Decode(&f); err != nil {
			return nil, errors.Wrap(err, "decoding TOML")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "decoding YAML")
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "decoding JSON")
		}
	default:
		return nil, errors.Errorf("unknown profile format %q", format)
	}
	return f.build()
}

func (f *file) build() (*Profile, error) {
	p := &Profile{
		MaxStackDepth: f.MaxStackDepth,
		MaxHeapSize:   f.MaxHeapSize,
		MaxTimeMs:     f.MaxTimeMs,
		Capabilities:  f.Capabilities,
	}
	for _, name := range f.Allow {
		c, err := ParseCapability(name)
		if err != nil {
			return nil, errors.Wrap(err, "allow")
		}
		p.Capabilities.Set(c, true)
	}
	// Deny overrides allow
	for _, name := range f.Deny {
		c, err := ParseCapability(name)
		if err != nil {
			return nil, errors.Wrap(err, "deny")
		}
		p.Capabilities.Set(c, false)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile loads a single profile file, choosing the format by extension.
func LoadFile(path string) (*Profile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: errors.Wrap(err, "reading profile")}
	}
	p, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return p, nil
}

// Load resolves the effective profile for projectDir.
// Precedence: project (.tern.*) → user (~/.tern/profile.*) → deny-all default.
// The returned path names the file used, or is empty for the default. A file
// that exists but fails to load is an error rather than a fallthrough.
func Load(projectDir string) (*Profile, string, error) {
	for _, name := range ProjectFiles {
		if p, path, err := tryLoad(filepath.Join(projectDir, name)); p != nil || err != nil {
			return p, path, err
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range UserFiles {
			if p, path, err := tryLoad(filepath.Join(home, UserDir, name)); p != nil || err != nil {
				return p, path, err
			}
		}
	}

	return DenyAll(), "", nil
}

func tryLoad(path string) (*Profile, string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, "", nil
	}
	p, err := LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return p, path, nil
}
