// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Display compaction defaults for agent-facing tool output.
const (
	DefaultCompactMaxArrayItems = 3
	DefaultCompactMaxStringLen  = 500
	DefaultCompactMaxDepth      = 0 // unlimited
)

// Credential source options.
const (
	CredSourceNone     = "none"
	CredSourceEnv      = "env"
	CredSourceVault    = "vault"
	CredSourceKeychain = "keychain"
)

// Config holds all configuration for the control service, the MCP
// server and the CLI.
type Config struct {
	// Service addresses
	Port        int    // UNBROWSE_PORT, default 8377
	BaseURL     string // UNBROWSE_URL, default "http://127.0.0.1:<port>"
	GatewayPort int    // OPENCLAW_GATEWAY_PORT, default 18789

	// Storage layout
	DataDir     string // UNBROWSE_HOME, default "<home>/.unbrowse"
	SkillsDir   string // UNBROWSE_SKILLS_DIR or OPENCLAW_SKILLS_DIR, default "<data>/skills"
	ProfilesDir string // default "<data>/header-profiles"
	VaultPath   string // default "<data>/vault.db"
	WalletPath  string // default "<data>/wallet.json"

	// Marketplace
	IndexURL      string // UNBROWSE_INDEX_URL, default "https://index.unbrowse.ai"
	CreatorWallet string // UNBROWSE_CREATOR_WALLET

	// Credentials
	CredentialSource string // UNBROWSE_CREDENTIAL_SOURCE, one of {none, env, vault, keychain}
	VaultKey         string // UNBROWSE_VAULT_KEY, passphrase for vault.db

	// First-run gate
	TosAccepted bool // UNBROWSE_TOS_ACCEPTED, any non-empty value

	// Timeouts and limits
	ToolTimeout        time.Duration // UNBROWSE_TOOL_TIMEOUT (seconds), default 60
	HTTPClientTimeout  time.Duration // HTTP_CLIENT_TIMEOUT_MS, default 30000
	MarketplaceTimeout time.Duration // MARKETPLACE_TIMEOUT_MS, default 10000
	CaptureTimeout     time.Duration // CAPTURE_TIMEOUT_MS, default 120000
	RaceTimeout        time.Duration // RESOLVE_RACE_TIMEOUT_MS, default 30000
	RouteCacheTTL      time.Duration // ROUTE_CACHE_TTL_MS, default 300000
	RefreshTick        time.Duration // TOKEN_REFRESH_TICK_MS, default 60000
	RefreshBufferMin   int           // TOKEN_REFRESH_BUFFER_MIN, default 5
	MaxExchanges       int           // CAPTURE_MAX_EXCHANGES, default 500
	VerifyWorkers      int           // VERIFY_WORKERS, default 4
	SessionHistory     int           // SESSION_HISTORY_LIMIT, default 15

	// Tool output shaping
	ToolMaxBytes         int // TOOL_MAX_BYTES_DEFAULT, default 200000
	CompactMaxArrayItems int // COMPACT_MAX_ARRAY_ITEMS
	CompactMaxStringLen  int // COMPACT_MAX_STRING_LEN
	CompactMaxDepth      int // COMPACT_MAX_DEPTH

	// Logging configuration
	LogLevel      string // UNBROWSE_LOG_LEVEL or LOG_LEVEL, default "info"
	LogFile       string // UNBROWSE_LOG_FILE or LOG_FILE, default "" (stderr only)
	LogMaxSizeMB  int    // LOG_MAX_SIZE_MB, default 10
	LogMaxBackups int    // LOG_MAX_BACKUPS, default 5
	LogMaxAgeDays int    // LOG_MAX_AGE_DAYS, default 28
	LogCompress   bool   // LOG_COMPRESS, default true
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("UNBROWSE_PORT", 8377)
	dataDir := getEnvString("UNBROWSE_HOME", defaultDataDir())

	skillsDir := os.Getenv("UNBROWSE_SKILLS_DIR")
	if skillsDir == "" {
		skillsDir = os.Getenv("OPENCLAW_SKILLS_DIR")
	}
	if skillsDir == "" {
		skillsDir = filepath.Join(dataDir, "skills")
	}

	return &Config{
		Port:        port,
		BaseURL:     getEnvString("UNBROWSE_URL", fmt.Sprintf("http://127.0.0.1:%d", port)),
		GatewayPort: getEnvInt("OPENCLAW_GATEWAY_PORT", 18789),

		DataDir:     dataDir,
		SkillsDir:   skillsDir,
		ProfilesDir: filepath.Join(dataDir, "header-profiles"),
		VaultPath:   filepath.Join(dataDir, "vault.db"),
		WalletPath:  filepath.Join(dataDir, "wallet.json"),

		IndexURL:      getEnvString("UNBROWSE_INDEX_URL", "https://index.unbrowse.ai"),
		CreatorWallet: getEnvString("UNBROWSE_CREATOR_WALLET", ""),

		CredentialSource: getEnvString("UNBROWSE_CREDENTIAL_SOURCE", CredSourceNone),
		VaultKey:         getEnvString("UNBROWSE_VAULT_KEY", ""),

		TosAccepted: os.Getenv("UNBROWSE_TOS_ACCEPTED") != "",

		ToolTimeout:        time.Duration(getEnvInt("UNBROWSE_TOOL_TIMEOUT", 60)) * time.Second,
		HTTPClientTimeout:  getEnvDurationMs("HTTP_CLIENT_TIMEOUT_MS", 30000),
		MarketplaceTimeout: getEnvDurationMs("MARKETPLACE_TIMEOUT_MS", 10000),
		CaptureTimeout:     getEnvDurationMs("CAPTURE_TIMEOUT_MS", 120000),
		RaceTimeout:        getEnvDurationMs("RESOLVE_RACE_TIMEOUT_MS", 30000),
		RouteCacheTTL:      getEnvDurationMs("ROUTE_CACHE_TTL_MS", 300000),
		RefreshTick:        getEnvDurationMs("TOKEN_REFRESH_TICK_MS", 60000),
		RefreshBufferMin:   getEnvInt("TOKEN_REFRESH_BUFFER_MIN", 5),
		MaxExchanges:       getEnvInt("CAPTURE_MAX_EXCHANGES", 500),
		VerifyWorkers:      getEnvInt("VERIFY_WORKERS", 4),
		SessionHistory:     getEnvInt("SESSION_HISTORY_LIMIT", 15),

		ToolMaxBytes:         getEnvInt("TOOL_MAX_BYTES_DEFAULT", 200_000),
		CompactMaxArrayItems: getEnvInt("COMPACT_MAX_ARRAY_ITEMS", DefaultCompactMaxArrayItems),
		CompactMaxStringLen:  getEnvInt("COMPACT_MAX_STRING_LEN", DefaultCompactMaxStringLen),
		CompactMaxDepth:      getEnvInt("COMPACT_MAX_DEPTH", DefaultCompactMaxDepth),

		LogLevel:      getEnvFirst([]string{"UNBROWSE_LOG_LEVEL", "LOG_LEVEL"}, "info"),
		LogFile:       getEnvFirst([]string{"UNBROWSE_LOG_FILE", "LOG_FILE"}, ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// BrowserPort is the browser control channel, derived from the gateway
// port.
func (c *Config) BrowserPort() int {
	return c.GatewayPort + 2
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unbrowse"
	}
	return filepath.Join(home, ".unbrowse")
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvFirst returns the first set variable among keys.
func getEnvFirst(keys []string, defaultVal string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultMs int) time.Duration {
	ms := getEnvInt(key, defaultMs)
	return time.Duration(ms) * time.Millisecond
}
