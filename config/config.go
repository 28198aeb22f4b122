package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string

	CommandPrefix string

	CacheDir         string
	MaxCacheSizeMB   int
	CacheMaxAge      int
	SweepInterval    int
	MinBufferSeconds int
	FetchTimeout     int
	MaxFetches       int
	BitrateKbps      int

	AutoLeaveTimeout int

	FilterChain    string
	PreferredTerms []string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
}

// defaultFilterChain is the ffmpeg audio filter the original deployment used:
// loudness normalization, a mild bass boost and dynamic range normalization.
// The string is passed through to ffmpeg verbatim.
const defaultFilterChain = "aformat=sample_fmts=fltp:sample_rates=48000:channel_layouts=stereo," +
	"loudnorm=I=-16:TP=-1.5:LRA=11,bass=g=3,dynaudnorm=f=150:g=15,aresample=async=1"

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),

		CommandPrefix: getEnvWithDefault("COMMAND_PREFIX", "!"),

		CacheDir:         getEnvWithDefault("CACHE_DIR", "music_cache"),
		MaxCacheSizeMB:   getEnvAsIntWithDefault("MAX_CACHE_SIZE_MB", 1024),
		CacheMaxAge:      getEnvAsIntWithDefault("CACHE_MAX_AGE_SECONDS", 3600),
		SweepInterval:    getEnvAsIntWithDefault("CACHE_SWEEP_INTERVAL_SECONDS", 3600),
		MinBufferSeconds: getEnvAsIntWithDefault("MIN_BUFFER_SECONDS", 10),
		FetchTimeout:     getEnvAsIntWithDefault("FETCH_TIMEOUT_SECONDS", 60),
		MaxFetches:       getEnvAsIntWithDefault("MAX_CONCURRENT_FETCHES", 5),
		BitrateKbps:      getEnvAsIntWithDefault("APPROX_BITRATE_KBPS", 320),

		AutoLeaveTimeout: getEnvAsIntWithDefault("AUTO_LEAVE_TIMEOUT", 60),

		FilterChain:    getEnvWithDefault("FFMPEG_FILTER_CHAIN", defaultFilterChain),
		PreferredTerms: splitList(getEnvWithDefault("SEARCH_PREFERRED_TERMS", "lyrics")),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnvAsInt("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  os.Getenv("DB_SSLMODE"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvAsInt("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsIntWithDefault("REDIS_DB", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}

	if c.CommandPrefix == "" {
		return errors.New("COMMAND_PREFIX must not be empty")
	}

	if c.MaxCacheSizeMB < 1 {
		return errors.New("MAX_CACHE_SIZE_MB must be at least 1")
	}

	if c.CacheMaxAge < 1 {
		return errors.New("CACHE_MAX_AGE_SECONDS must be at least 1")
	}

	if c.MinBufferSeconds < 1 {
		return errors.New("MIN_BUFFER_SECONDS must be at least 1")
	}

	if c.FetchTimeout < 1 {
		return errors.New("FETCH_TIMEOUT_SECONDS must be at least 1")
	}

	if c.MaxFetches < 1 {
		return errors.New("MAX_CONCURRENT_FETCHES must be at least 1")
	}

	if c.BitrateKbps < 8 {
		return errors.New("APPROX_BITRATE_KBPS must be at least 8")
	}

	return nil
}

func (c *Config) MaxCacheBytes() int64 {
	return int64(c.MaxCacheSizeMB) * 1024 * 1024
}

func getEnvAsInt(key string) int {
	return getEnvAsIntWithDefault(key, 0)
}

func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
