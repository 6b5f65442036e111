package config

import (
	"os"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds every environment-derived setting the server needs at
// startup.
type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	TablePrefix string
	MinConns    int32
	MaxConns    int32

	JWKSURL     string
	CORSOrigins string

	// MetadataMirrorPort, if set, starts the standalone read-only
	// CapabilityStatement mirror (internal/transport/metamirror) on this
	// port, independent of the main API's listener and CORS policy. Empty
	// disables it.
	MetadataMirrorPort string

	MaxChainDepth   int // read and validated only; the search compiler applies no chain/_has depth limit
	MaxIncludeDepth int // bound on _include/_revinclude :iterate rounds
	MaxPageSize     int // read and validated only; _count is not clamped to it

	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,

		DatabaseURL: getEnv("DATABASE_URL", ""),
		TablePrefix: getTablePrefix(env),
		MinConns:    int32(getEnvInt("DB_MIN_CONNS", 5)),
		MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 25)),

		JWKSURL:     getEnv("JWKS_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),

		MetadataMirrorPort: getEnv("METADATA_MIRROR_PORT", ""),

		MaxChainDepth:   getEnvInt("MAX_CHAIN_DEPTH", 3),
		MaxIncludeDepth: getEnvInt("MAX_INCLUDE_DEPTH", 5),
		MaxPageSize:     getEnvInt("MAX_PAGE_SIZE", 500),

		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// Validate rejects a config that would bring the server up in a broken
// state (no database, a chain/include depth of zero that would silently
// disable those features, a page size clamp that can't hold a single
// resource).
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.MaxChainDepth, validation.Min(1)),
		validation.Field(&c.MaxIncludeDepth, validation.Min(1)),
		validation.Field(&c.MaxPageSize, validation.Min(1)),
		validation.Field(&c.MinConns, validation.Min(int32(0))),
		validation.Field(&c.MaxConns, validation.Min(int32(1))),
	)
}

// getDefaultDebug returns the default debug setting based on environment.
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment, allowing a
// manual override via TABLE_PREFIX.
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
