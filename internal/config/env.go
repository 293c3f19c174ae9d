// Package config provides environment helpers and default paths for go-lightwall commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults shared by the CLI and the application config.
const (
	DefaultOllamaHost  = "localhost"
	DefaultOllamaPort  = "11434"
	DefaultPersonality = "lightwall"
	DefaultDashboard   = "8181"
	DefaultConfigName  = "lightwall"
)

// String returns the env var named key, or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// OllamaURL returns the Ollama base URL from OLLAMA_HOST and OLLAMA_PORT.
func OllamaURL() string {
	host := String("OLLAMA_HOST", DefaultOllamaHost)
	port := String("OLLAMA_PORT", DefaultOllamaPort)
	return fmt.Sprintf("http://%s:%s", host, port)
}

// Home returns the lightwall state directory ($LIGHTWALL_HOME or ~/.lightwall).
func Home() string {
	if dir := os.Getenv("LIGHTWALL_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".lightwall")
}

// JournalPath returns the default SQLite journal location.
func JournalPath() string {
	return filepath.Join(Home(), "journal.db")
}

// DashboardURL returns the local dashboard base URL for a port.
func DashboardURL(port string) string {
	return fmt.Sprintf("http://localhost:%s", port)
}
