package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"outline_assistant/auth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("PORT", "8089")
	t.Setenv("GOOGLE_CLIENT_ID", "cid-env")

	path := writeConfig(t, `{
		"llm": {"provider": "openai", "model": "gpt-4o-mini", "api_key": "sk-file"},
		"google": {"client_id": "cid-file", "redirect_port": 8765},
		"observer": {"strategy": "poll", "poll_ms": 500}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, "sk-env", cfg.LLM.APIKey)
	require.Equal(t, ":8089", cfg.ServerAddr)
	require.Equal(t, "cid-env", cfg.Google.ClientID)
	require.Equal(t, 8765, cfg.Google.RedirectPort)
	require.Equal(t, []string{auth.DocumentsScope}, cfg.Google.Scopes)
	require.Equal(t, "poll", cfg.Observer.Strategy)
	require.Equal(t, 500*time.Millisecond, cfg.Observer.PollInterval())
	require.Equal(t, 100*time.Millisecond, cfg.Observer.Debounce())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SECRET_RELAY_URL", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET_RELAY_URL=http://localhost:3001/api/secret\n"), 0o600))
	os.Unsetenv("SECRET_RELAY_URL")

	cfg, err := Load(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3001/api/secret", cfg.LLM.RelayURL)
	require.Equal(t, DefaultServerAddr, cfg.ServerAddr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(writeConfig(t, `{"llm": {"provider": "claude"}}`))
	require.ErrorContains(t, err, "not supported")

	_, err = Load(writeConfig(t, `{"llm": {"provider": "deepseek"}}`))
	require.ErrorContains(t, err, "base_url")

	_, err = Load(writeConfig(t, `{"observer": {"strategy": "sometimes"}}`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `{not json`))
	require.ErrorContains(t, err, "parse")
}
