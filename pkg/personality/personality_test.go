package personality

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "robot.json", `{"voice": "Fred", "speed": 120, "systemPrompt": "Beep."}`)

	p, err := Load(dir, "robot")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "robot" || p.Voice != "Fred" || p.Speed != 120 || p.SystemPrompt != "Beep." {
		t.Errorf("loaded %+v", p)
	}
	if p.Path != filepath.Join(dir, "robot.json") {
		t.Errorf("Path = %q", p.Path)
	}
}

func TestLoadYAMLWithPhrases(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "poet.yaml", `
name: The Poet
voice: Daniel
speed: 70
systemPrompt: Speak in images.
greetings: ["hello", "welcome"]
farewells: ["farewell"]
`)

	p, err := Load(dir, "poet")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "The Poet" || len(p.Greetings) != 2 || p.Farewells[0] != "farewell" {
		t.Errorf("loaded %+v", p)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "novoice.json", `{"speed": 80, "systemPrompt": "x"}`)
	write(t, dir, "noprompt.json", `{"voice": "v", "speed": 80}`)
	write(t, dir, "slow.json", `{"voice": "v", "speed": 0, "systemPrompt": "x"}`)
	write(t, dir, "broken.json", `{"voice": `)

	tests := []struct {
		name  string
		field string
		is    error
	}{
		{"missing", "", ErrNotFound},
		{"novoice", "voice", ErrMissingField},
		{"noprompt", "systemPrompt", ErrMissingField},
		{"slow", "speed", ErrInvalidField},
		{"broken", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(dir, tt.name)
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if perr.Field != tt.field {
				t.Errorf("Field = %q, want %q", perr.Field, tt.field)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
			if perr.Name != tt.name {
				t.Errorf("Name = %q", perr.Name)
			}
		})
	}
}

func TestJSONPreferredOverYAML(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "both.json", `{"voice": "json", "speed": 80, "systemPrompt": "x"}`)
	write(t, dir, "both.yaml", "voice: yaml\nspeed: 80\nsystemPrompt: x\n")

	p, err := Load(dir, "both")
	if err != nil {
		t.Fatal(err)
	}
	if p.Voice != "json" {
		t.Errorf("Voice = %q", p.Voice)
	}

	names, err := List(dir)
	if err != nil || len(names) != 1 || names[0] != "both" {
		t.Errorf("List() = %v, %v", names, err)
	}
}

func TestBundledPersonalities(t *testing.T) {
	dir := filepath.Join("..", "..", DefaultDir)
	names, err := List(dir)
	if err != nil {
		t.Skipf("no bundled personalities: %v", err)
	}
	for _, n := range names {
		if _, err := Load(dir, n); err != nil {
			t.Errorf("bundled %s: %v", n, err)
		}
	}
}
