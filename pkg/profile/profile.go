// Package profile implements Tern sandbox profiles: resource budgets plus
// capability flags, and loading them from project and user files.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Capability names one class of effectful operation.
type Capability string

const (
	CapIO         Capability = "io"
	CapNetwork    Capability = "network"
	CapFilesystem Capability = "filesystem"
	CapDeferred   Capability = "deferred_execution"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{CapIO, CapNetwork, CapFilesystem, CapDeferred}

// ParseCapability maps a user-supplied name onto a Capability. "async" and
// "deferred" are accepted for deferred_execution.
func ParseCapability(name string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "io":
		return CapIO, nil
	case "network", "net":
		return CapNetwork, nil
	case "filesystem", "fs":
		return CapFilesystem, nil
	case "deferred_execution", "deferred", "async":
		return CapDeferred, nil
	}
	return "", errors.Errorf("unknown capability %q", name)
}

// Capabilities holds one flag per capability. The zero value denies everything.
type Capabilities struct {
	IO                bool `json:"io" yaml:"io" toml:"io"`
	Network           bool `json:"network" yaml:"network" toml:"network"`
	Filesystem        bool `json:"filesystem" yaml:"filesystem" toml:"filesystem"`
	DeferredExecution bool `json:"deferred_execution" yaml:"deferred_execution" toml:"deferred_execution"`
}

func (c *Capabilities) flag(cap Capability) *bool {
	switch cap {
	case CapIO:
		return &c.IO
	case CapNetwork:
		return &c.Network
	case CapFilesystem:
		return &c.Filesystem
	case CapDeferred:
		return &c.DeferredExecution
	}
	return nil
}

// Set grants or revokes cap.
func (c *Capabilities) Set(cap Capability, allowed bool) error {
	f := c.flag(cap)
	if f == nil {
		return errors.Errorf("unknown capability %q", cap)
	}
	*f = allowed
	return nil
}

// Has reports whether cap is granted.
func (c Capabilities) Has(cap Capability) bool {
	f := c.flag(cap)
	return f != nil && *f
}

// Profile is the sandbox configuration for one run. A nil budget is unlimited.
type Profile struct {
	MaxStackDepth *int         `json:"max_stack_depth,omitempty" yaml:"max_stack_depth,omitempty" toml:"max_stack_depth"`
	MaxHeapSize   *int         `json:"max_heap_size,omitempty" yaml:"max_heap_size,omitempty" toml:"max_heap_size"`
	MaxTimeMs     *int64       `json:"max_time_ms,omitempty" yaml:"max_time_ms,omitempty" toml:"max_time_ms"`
	Capabilities  Capabilities `json:"capabilities" yaml:"capabilities" toml:"capabilities"`
}

// DenyAll returns a profile with no budgets and every capability denied.
func DenyAll() *Profile {
	return &Profile{}
}

// AllowAll returns a profile with no budgets and every capability granted.
func AllowAll() *Profile {
	return &Profile{Capabilities: Capabilities{IO: true, Network: true, Filesystem: true, DeferredExecution: true}}
}

// Allows reports whether p grants cap. A nil profile grants nothing.
func (p *Profile) Allows(cap Capability) bool {
	if p == nil {
		return false
	}
	return p.Capabilities.Has(cap)
}

// Allowed returns the granted capabilities in display order.
func (p *Profile) Allowed() []Capability {
	var out []Capability
	for _, c := range AllCapabilities {
		if p.Allows(c) {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy, so a run cannot observe later changes by its host.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return DenyAll()
	}
	out := &Profile{Capabilities: p.Capabilities}
	if p.MaxStackDepth != nil {
		out.MaxStackDepth = Int(*p.MaxStackDepth)
	}
	if p.MaxHeapSize != nil {
		out.MaxHeapSize = Int(*p.MaxHeapSize)
	}
	if p.MaxTimeMs != nil {
		out.MaxTimeMs = Int64(*p.MaxTimeMs)
	}
	return out
}

// Validate rejects negative budgets.
func (p *Profile) Validate() error {
	if p.MaxStackDepth != nil && *p.MaxStackDepth < 0 {
		return errors.Errorf("max_stack_depth must not be negative, got %d", *p.MaxStackDepth)
	}
	if p.MaxHeapSize != nil && *p.MaxHeapSize < 0 {
		return errors.Errorf("max_heap_size must not be negative, got %d", *p.MaxHeapSize)
	}
	if p.MaxTimeMs != nil && *p.MaxTimeMs < 0 {
		return errors.Errorf("max_time_ms must not be negative, got %d", *p.MaxTimeMs)
	}
	return nil
}

func (p *Profile) String() string {
	budget := func(name string, v *int64) string {
		if v == nil {
			return name + "=unlimited"
		}
		return fmt.Sprintf("%s=%d", name, *v)
	}
	var depth, heap *int64
	if p.MaxStackDepth != nil {
		depth = Int64(int64(*p.MaxStackDepth))
	}
	if p.MaxHeapSize != nil {
		heap = Int64(int64(*p.MaxHeapSize))
	}
	caps := make([]string, 0, len(AllCapabilities))
	for _, c := range p.Allowed() {
		caps = append(caps, string(c))
	}
	sort.Strings(caps)
	return fmt.Sprintf("%s %s %s allow=[%s]",
		budget("max_stack_depth", depth),
		budget("max_heap_size", heap),
		budget("max_time_ms", p.MaxTimeMs),
		strings.Join(caps, ","))
}

// Int returns a pointer to n.
func Int(n int) *int { return &n }

// Int64 returns a pointer to n.
func Int64(n int64) *int64 { return &n }
