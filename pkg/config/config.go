// Package config loads the process-wide Settings record — the storage
// directory, optional hostname, and the Anthropic API key — from
// settings.toml with an env/.env overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Settings holds everything needed to start the process: where the
// per-project graph stores live, the optional bound hostname, and the
// Anthropic API key used by pkg/llm.
//
// Settings.StorageDir is Required: Complete() reports incomplete until it
// is set, mirroring get_settings_status's StorageDirNotConfigured reason.
type Settings struct {
	StorageDir      string `toml:"path_to_storage_dir" json:"path_to_storage_dir"`
	Hostname        string `toml:"hostname,omitempty" json:"hostname,omitempty"`
	AnthropicAPIKey string `toml:"anthropic_api_key,omitempty" json:"anthropic_api_key,omitempty"`
	AnthropicModel  string `toml:"anthropic_model,omitempty" json:"anthropic_model,omitempty"`
}

// IncompleteReason names one thing Settings is still missing before the
// process can serve a project.
type IncompleteReason string

const ReasonStorageDirNotConfigured IncompleteReason = "storage_dir_not_configured"

// Status reports whether Settings has everything it needs to run.
type Status struct {
	Complete bool               `json:"complete"`
	Missing  []IncompleteReason `json:"missing"`
}

// Complete reports Settings' current readiness, the Go analogue of
// Settings::get_settings_status.
func (s Settings) Complete() Status {
	var missing []IncompleteReason
	if s.StorageDir == "" {
		missing = append(missing, ReasonStorageDirNotConfigured)
	}
	if len(missing) == 0 {
		return Status{Complete: true}
	}
	return Status{Missing: missing}
}

// ConfigDir returns the per-user config directory this process reads
// settings.toml from, creating it if absent.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config dir: %w", err)
	}
	dir := filepath.Join(base, "pixlieai")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create config dir %s: %w", dir, err)
	}
	return dir, nil
}

// Load reads settings.toml from the process config directory, then
// overlays a local .env file (if present) and plain environment
// variables, in that priority order: file < .env < os.Getenv. Missing
// settings.toml is not an error — an empty Settings is the starting
// point, same as the original's "create a blank config file if it does
// not exist".
func Load() (Settings, error) {
	dir, err := ConfigDir()
	if err != nil {
		return Settings{}, err
	}
	return LoadFrom(filepath.Join(dir, "settings.toml"))
}

// LoadFrom reads settings from path, applying the same .env/env overlay
// as Load. Exposed separately so tests, the CLI's init command and the
// HTTP API can name the settings file directly.
func LoadFrom(path string) (Settings, error) {
	var s Settings

	if raw, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(raw, &s); err != nil {
			return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	// godotenv.Load populates the process environment from .env without
	// overriding variables already set there, so a real deployment's env
	// always wins over a stray .env checked into a working directory.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("config: load .env: %w", err)
	}

	if v := os.Getenv("PIXLIEAI_STORAGE_DIR"); v != "" {
		s.StorageDir = v
	}
	if v := os.Getenv("PIXLIEAI_HOSTNAME"); v != "" {
		s.Hostname = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		s.AnthropicAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		s.AnthropicModel = v
	}

	return s, nil
}

// Save writes s as settings.toml in the process config directory,
// matching Settings::write_to_config_file.
func Save(s Settings) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return SaveTo(filepath.Join(dir, "settings.toml"), s)
}

// SaveTo writes s as TOML to path.
func SaveTo(path string, s Settings) error {
	raw, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Merge applies any non-zero field of updates onto s and returns the
// result, matching Settings::merge_updates's "only overwrite what was
// actually sent" semantics.
func Merge(s, updates Settings) Settings {
	if updates.StorageDir != "" {
		s.StorageDir = updates.StorageDir
	}
	if updates.Hostname != "" {
		s.Hostname = updates.Hostname
	}
	if updates.AnthropicAPIKey != "" {
		s.AnthropicAPIKey = updates.AnthropicAPIKey
	}
	if updates.AnthropicModel != "" {
		s.AnthropicModel = updates.AnthropicModel
	}
	return s
}
