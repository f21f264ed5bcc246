// Package testutil loads the YAML conformance scenarios shared by Tern tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/thomasrohde/tern/pkg/effects"
	"github.com/thomasrohde/tern/pkg/evaluator"
	"github.com/thomasrohde/tern/pkg/profile"
)

// ScenariosDir is the scenario directory relative to the module root.
const ScenariosDir = "testdata/scenarios"

// Scenario is one program plus its sandbox and expected outcome.
type Scenario struct {
	Name    string           `yaml:"name"`
	Source  string           `yaml:"source"`
	Allow   []string         `yaml:"allow,omitempty"`
	Budgets *ScenarioBudgets `yaml:"budgets,omitempty"`
	Host    ScenarioHost     `yaml:"host,omitempty"`
	Expect  Expectation      `yaml:"expect"`

	// File is the scenario file this scenario came from.
	File string `yaml:"-"`
}

// ScenarioBudgets mirrors the profile budgets.
type ScenarioBudgets struct {
	MaxStackDepth *int   `yaml:"max_stack_depth,omitempty"`
	MaxHeapSize   *int   `yaml:"max_heap_size,omitempty"`
	MaxTimeMs     *int64 `yaml:"max_time_ms,omitempty"`
}

// ScenarioHost seeds the in-memory host.
type ScenarioHost struct {
	Input     []string            `yaml:"input,omitempty"`
	Files     map[string]string   `yaml:"files,omitempty"`
	Responses map[string]Response `yaml:"responses,omitempty"`
}

// Response is a canned fetch response.
type Response struct {
	Status int    `yaml:"status"`
	Body   string `yaml:"body"`
}

// Expectation describes the outcome of running a scenario. Unset fields are
// not checked.
type Expectation struct {
	// Value is the program's final value written as plain YAML.
	Value    yaml.Node `yaml:"value,omitempty"`
	Rendered *string    `yaml:"rendered,omitempty"`
	Output   *string    `yaml:"output,omitempty"`
	// Error is a runtime error kind such as TypeError.
	Error string            `yaml:"error,omitempty"`
	Code  string            `yaml:"code,omitempty"`
	Exit  int               `yaml:"exit"`
	Files map[string]string `yaml:"files,omitempty"`
	Calls []string          `yaml:"calls,omitempty"`
}

// Profile builds the sandbox profile the scenario runs under.
func (s *Scenario) Profile() (*profile.Profile, error) {
	p := profile.DenyAll()
	for _, name := range s.Allow {
		c, err := profile.ParseCapability(name)
		if err != nil {
			return nil, errors.Wrapf(err, "scenario %q", s.Name)
		}
		if err := p.Capabilities.Set(c, true); err != nil {
			return nil, err
		}
	}
	if b := s.Budgets; b != nil {
		p.MaxStackDepth = b.MaxStackDepth
		p.MaxHeapSize = b.MaxHeapSize
		p.MaxTimeMs = b.MaxTimeMs
	}
	return p, nil
}

// NewHost returns a fresh in-memory host seeded from the scenario.
func (s *Scenario) NewHost() *effects.MemoryHost {
	h := effects.NewMemoryHost().SetInput(s.Host.Input...)
	for name, text := range s.Host.Files {
		h.SetFile(name, text)
	}
	for url, r := range s.Host.Responses {
		h.SetResponse(url, r.Status, r.Body)
	}
	return h
}

// ExpectedValue decodes Expect.Value. ok is false when the scenario does not
// check the value.
func (s *Scenario) ExpectedValue() (evaluator.Value, bool, error) {
	if s.Expect.Value.Kind == 0 {
		return nil, false, nil
	}
	var native any
	if err := s.Expect.Value.Decode(&native); err != nil {
		return nil, false, errors.Wrapf(err, "scenario %q: decoding expected value", s.Name)
	}
	return evaluator.FromNative(native), true, nil
}

// LoadScenarios reads every scenario in one YAML file.
func LoadScenarios(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening scenarios")
	}
	defer f.Close()

	var scenarios []Scenario
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&scenarios); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	for i := range scenarios {
		scenarios[i].File = filepath.Base(path)
		if scenarios[i].Name == "" {
			return nil, errors.Errorf("%s: scenario %d has no name", path, i)
		}
	}
	return scenarios, nil
}

// ListScenarioFiles returns the YAML files under root, sorted.
func ListScenarioFiles(root string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
