// Package prompt turns a named mode and its inputs into a prompt.
//
// Modes are data: each one is a text/template plus the inputs it accepts.
// The built-in set is embedded from modes.yaml and can be extended or
// overridden by a YAML file with the same layout.
package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/jzx17/genproxy/pkg/types"
)

//go:embed modes.yaml
var builtinModes []byte

var (
	// ErrUnknownMode is returned when a mode name is not in the catalog
	ErrUnknownMode = fmt.Errorf("%w: unknown mode", types.ErrInvalidInput)

	// ErrMissingInput is returned when a required input is absent or blank
	ErrMissingInput = fmt.Errorf("%w: missing input", types.ErrInvalidInput)
)

// Input describes one named value a mode template reads
type Input struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required,omitempty"`
	Default  string `yaml:"default,omitempty"`
}

// Mode is a named prompt template
type Mode struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Inputs      []Input `yaml:"inputs,omitempty"`
	Template    string  `yaml:"template"`

	tmpl *template.Template
}

// File is the YAML layout of a modes file
type File struct {
	Version string `yaml:"version"`
	Modes   []Mode `yaml:"modes"`
}

// Catalog holds the available modes. It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	modes map[string]*Mode
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{modes: make(map[string]*Mode)}
}

// DefaultCatalog returns a catalog holding the built-in modes
func DefaultCatalog() (*Catalog, error) {
	c := NewCatalog()
	if err := c.LoadYAML(builtinModes); err != nil {
		return nil, fmt.Errorf("load built-in modes: %w", err)
	}
	return c, nil
}

// LoadCatalog returns the built-in modes overridden by the modes in path.
// An empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read modes file: %w", err)
	}
	if err := c.LoadYAML(data); err != nil {
		return nil, fmt.Errorf("load modes file %s: %w", path, err)
	}
	return c, nil
}

// LoadYAML registers every mode of a modes file, replacing modes with the same name
func (c *Catalog) LoadYAML(data []byte) error {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse modes: %w", err)
	}

	for _, mode := range file.Modes {
		if err := c.Register(mode); err != nil {
			return err
		}
	}
	return nil
}

// Register adds or replaces a mode after compiling its template
func (c *Catalog) Register(mode Mode) error {
	mode.Name = strings.TrimSpace(mode.Name)
	if mode.Name == "" {
		return fmt.Errorf("mode name is required")
	}
	if mode.Template == "" {
		return fmt.Errorf("mode %q has no template", mode.Name)
	}

	tmpl, err := template.New(mode.Name).Option("missingkey=zero").Parse(mode.Template)
	if err != nil {
		return fmt.Errorf("mode %q: parse template: %w", mode.Name, err)
	}
	mode.tmpl = tmpl

	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes[mode.Name] = &mode
	return nil
}

// Get returns the mode registered under name
func (c *Catalog) Get(name string) (Mode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mode, ok := c.modes[name]
	if !ok {
		return Mode{}, false
	}
	return *mode, true
}

// Names returns the registered mode names in sorted order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.modes))
	for name := range c.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render builds the prompt for mode from input.
// Defaults fill absent inputs; a required input that is still blank fails.
func (c *Catalog) Render(name string, input map[string]string) (string, error) {
	c.mu.RLock()
	mode, ok := c.modes[name]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownMode, name)
	}

	data := make(map[string]string, len(input)+len(mode.Inputs))
	for k, v := range input {
		data[k] = v
	}

	for _, in := range mode.Inputs {
		if strings.TrimSpace(data[in.Name]) != "" {
			continue
		}
		if in.Default != "" {
			data[in.Name] = in.Default
			continue
		}
		if in.Required {
			return "", fmt.Errorf("%w %q for mode %q", ErrMissingInput, in.Name, name)
		}
	}

	var buf bytes.Buffer
	if err := mode.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render mode %q: %w", name, err)
	}
	return buf.String(), nil
}
