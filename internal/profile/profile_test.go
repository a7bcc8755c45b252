package profile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DRIFTCHAT_GATEWAY_BASE_URL", "")
	t.Setenv("DRIFTCHAT_SEARCH_API_KEY", "")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "https://openrouter.ai/api/v1", p.GatewayBaseURL)
	assert.Equal(t, 120, p.GatewayTimeout)
	assert.Equal(t, "openai/gpt-4o-mini", p.UtilityModel)
	assert.Empty(t, p.SearchAPIKey)
}

func TestFromEnvFallbackKeys(t *testing.T) {
	t.Setenv("DRIFTCHAT_FALLBACK_KEY_OPENROUTER", "sk-or-test")
	t.Setenv("DRIFTCHAT_FALLBACK_KEY_OPENAI", "sk-test")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "sk-or-test", p.FallbackKeys["openrouter"])
	assert.Equal(t, "sk-test", p.FallbackKeys["openai"])
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid sqlite profile gets default DSN", func(t *testing.T) {
		p := &Profile{
			Mode:   "dev",
			Data:   dir,
			Driver: "sqlite",
			Secret: "0123456789abcdef0123456789abcdef",
		}
		require.NoError(t, p.Validate())
		assert.Contains(t, p.DSN, "driftchat_dev.db")
	})

	t.Run("unknown mode falls back to demo", func(t *testing.T) {
		p := &Profile{
			Mode:   "staging",
			Data:   dir,
			Driver: "sqlite",
			Secret: "0123456789abcdef0123456789abcdef",
		}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("short secret rejected", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: dir, Driver: "sqlite", Secret: "short"}
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir rejected", func(t *testing.T) {
		p := &Profile{
			Mode:   "dev",
			Data:   "/nonexistent/driftchat-test",
			Driver: "sqlite",
			Secret: "0123456789abcdef0123456789abcdef",
		}
		assert.Error(t, p.Validate())
	})
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.True(t, (&Profile{Mode: "demo"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
