package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Inference gateway configuration (OpenAI-compatible protocol).
	// All completion, image and video traffic goes through this single
	// gateway; per-user keys override the fallback keys below.
	GatewayBaseURL string // e.g. https://openrouter.ai/api/v1
	GatewayTimeout int    // request timeout in seconds (default: 120)

	// Operator-level fallback API keys, keyed by provider identifier.
	// Used by the credential resolver when a user has not stored a key.
	FallbackKeys map[string]string

	// Secondary model used for cheap utility calls (titles, memory
	// compression, history compaction).
	UtilityModel string

	// Web search enrichment provider.
	SearchBaseURL string
	SearchAPIKey  string

	// URL scraper endpoint. Empty means direct fetching.
	ScrapeProxyURL string

	UNIXSock    string
	Mode        string
	DSN         string
	Driver      string
	Version     string
	InstanceURL string
	Addr        string
	Data        string
	// Secret signs access tokens and derives the credential encryption
	// key. Must be 32 bytes for AES-256-GCM.
	Secret string
	Port   int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.GatewayBaseURL = getEnvOrDefault("DRIFTCHAT_GATEWAY_BASE_URL", "https://openrouter.ai/api/v1")
	p.GatewayTimeout = getEnvOrDefaultInt("DRIFTCHAT_GATEWAY_TIMEOUT_SECONDS", 120)
	p.UtilityModel = getEnvOrDefault("DRIFTCHAT_UTILITY_MODEL", "openai/gpt-4o-mini")

	p.SearchBaseURL = getEnvOrDefault("DRIFTCHAT_SEARCH_BASE_URL", "https://api.tavily.com")
	p.SearchAPIKey = getEnvOrDefault("DRIFTCHAT_SEARCH_API_KEY", "")
	p.ScrapeProxyURL = getEnvOrDefault("DRIFTCHAT_SCRAPE_PROXY_URL", "")

	p.Secret = getEnvOrDefault("DRIFTCHAT_SECRET", p.Secret)

	// Fallback provider keys: DRIFTCHAT_FALLBACK_KEY_<PROVIDER>=<key>
	p.FallbackKeys = map[string]string{}
	const prefix = "DRIFTCHAT_FALLBACK_KEY_"
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) || value == "" {
			continue
		}
		provider := strings.ToLower(strings.TrimPrefix(name, prefix))
		p.FallbackKeys[provider] = value
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/driftchat"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("driftchat_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if len(p.Secret) != 32 {
		return errors.Errorf("secret must be exactly 32 bytes, got %d", len(p.Secret))
	}

	return nil
}
