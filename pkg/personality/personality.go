// Package personality loads the wall's character: its voice, speaking
// rate, system prompt and optional phrase lists.
package personality

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir is where personality files live.
const DefaultDir = "personalities"

// extensions are tried in order.
var extensions = []string{".json", ".yaml", ".yml"}

// required keys, as written in the file.
var required = []string{"voice", "speed", "systemPrompt"}

// Sentinel errors wrapped by Error.
var (
	ErrNotFound     = errors.New("personality file not found")
	ErrMissingField = errors.New("missing required key")
	ErrInvalidField = errors.New("invalid value")
)

// Error reports a personality that cannot be used.
type Error struct {
	Name  string
	Path  string
	Field string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("personality %q: %v: %s", e.Name, e.Err, e.Field)
	case e.Path != "":
		return fmt.Sprintf("personality %q (%s): %v", e.Name, e.Path, e.Err)
	default:
		return fmt.Sprintf("personality %q: %v", e.Name, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Personality is one character definition.
type Personality struct {
	Name         string   `mapstructure:"name" json:"name"`
	Voice        string   `mapstructure:"voice" json:"voice"`
	Speed        int      `mapstructure:"speed" json:"speed"`
	SystemPrompt string   `mapstructure:"systemPrompt" json:"systemPrompt"`
	Greetings    []string `mapstructure:"greetings" json:"greetings,omitempty"`
	Farewells    []string `mapstructure:"farewells" json:"farewells,omitempty"`

	// Path is the file the personality was read from.
	Path string `mapstructure:"-" json:"path"`
}

// Find returns the file for name in dir, trying each supported extension.
func Find(dir, name string) (string, error) {
	for _, ext := range extensions {
		path := filepath.Join(dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", &Error{Name: name, Path: filepath.Join(dir, name+".json"), Err: ErrNotFound}
}

// Load reads <dir>/<name>.json (or .yaml) and checks the required keys.
func Load(dir, name string) (*Personality, error) {
	path, err := Find(dir, name)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads one personality file. The name defaults to the file's
// base name.
func LoadFile(path string) (*Personality, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Name: name, Path: path, Err: err}
	}

	for _, key := range required {
		if !v.IsSet(key) {
			return nil, &Error{Name: name, Path: path, Field: key, Err: ErrMissingField}
		}
	}

	p := &Personality{}
	if err := v.Unmarshal(p); err != nil {
		return nil, &Error{Name: name, Path: path, Err: err}
	}
	if p.Name == "" {
		p.Name = name
	}
	p.Path = path

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks field values.
func (p *Personality) Validate() error {
	if p.Speed <= 0 {
		return &Error{Name: p.Name, Path: p.Path, Field: "speed", Err: ErrInvalidField}
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return &Error{Name: p.Name, Path: p.Path, Field: "systemPrompt", Err: ErrInvalidField}
	}
	return nil
}

// List returns the personality names available in dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, want := range extensions {
			if ext != want {
				continue
			}
			n := strings.TrimSuffix(e.Name(), ext)
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names, nil
}
