// Package config loads config/config.json, layering .env and process
// environment overrides on top.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"outline_assistant/auth"
	"outline_assistant/generator"
)

// Config is the on-disk configuration.
type Config struct {
	LLM        LLMConfig      `json:"llm"`
	Google     GoogleConfig   `json:"google"`
	Observer   ObserverConfig `json:"observer"`
	ServerAddr string         `json:"server_addr,omitempty"`
}

// LLMConfig selects the completion backend. With api_key empty the key is
// fetched from relay_url.
type LLMConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	RelayURL string `json:"relay_url,omitempty"`
}

// GoogleConfig holds the OAuth client and Docs API settings.
type GoogleConfig struct {
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	RedirectPort int      `json:"redirect_port,omitempty"`
	RevokeURL    string   `json:"revoke_url,omitempty"`
	DocsEndpoint string   `json:"docs_endpoint,omitempty"`
}

// ObserverConfig tunes change observation.
type ObserverConfig struct {
	Strategy   string `json:"strategy,omitempty"`
	DebounceMS int    `json:"debounce_ms,omitempty"`
	PollMS     int    `json:"poll_ms,omitempty"`
}

const DefaultServerAddr = ":3001"

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LLM:        LLMConfig{Provider: "openai", Model: generator.DefaultModel},
		Google:     GoogleConfig{Scopes: []string{auth.DocumentsScope}, RevokeURL: auth.DefaultRevokeURL},
		Observer:   ObserverConfig{Strategy: "auto", DebounceMS: 100, PollMS: 2000},
		ServerAddr: DefaultServerAddr,
	}
}

// Load reads path (a missing file falls back to defaults), then applies
// .env and environment overrides, then validates.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	set(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.LLM.RelayURL, "SECRET_RELAY_URL")
	set(&cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	set(&cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.ServerAddr = ":" + port
	}
}

// Validate rejects values the rest of the program cannot use.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "", "openai", "deepseek", "mock":
	default:
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
		return errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
	}
	switch c.Observer.Strategy {
	case "", "auto", "mutation", "poll":
	default:
		return fmt.Errorf("observer strategy %s not supported", c.Observer.Strategy)
	}
	if c.Observer.DebounceMS < 0 || c.Observer.PollMS < 0 {
		return errors.New("observer intervals must not be negative")
	}
	return nil
}

// Debounce returns the observer debounce as a duration.
func (o ObserverConfig) Debounce() time.Duration {
	return time.Duration(o.DebounceMS) * time.Millisecond
}

// PollInterval returns the observer poll interval as a duration.
func (o ObserverConfig) PollInterval() time.Duration {
	return time.Duration(o.PollMS) * time.Millisecond
}
