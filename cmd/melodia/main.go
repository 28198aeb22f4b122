package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/melodiabot/melodia/config"
	"github.com/melodiabot/melodia/internal/bot"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Melodia - Discord Music Bot")
	log.Println("===========================")

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Error: Failed to load configuration: %v", err)
		log.Println("")
		log.Println("Please ensure you have set the following environment variables:")
		log.Println("  DISCORD_TOKEN               - Your Discord bot token (required)")
		log.Println("")
		log.Println("Optional environment variables:")
		log.Println("  COMMAND_PREFIX              - Command prefix (default: !)")
		log.Println("  CACHE_DIR                   - Audio cache directory (default: music_cache)")
		log.Println("  MAX_CACHE_SIZE_MB           - Cache size budget in MB (default: 1024)")
		log.Println("  CACHE_MAX_AGE_SECONDS       - Cache entry max age (default: 3600)")
		log.Println("  CACHE_SWEEP_INTERVAL_SECONDS- Cache sweep interval (default: 3600)")
		log.Println("  MIN_BUFFER_SECONDS          - Buffered seconds before playback (default: 10)")
		log.Println("  FETCH_TIMEOUT_SECONDS       - Buffer-ready timeout (default: 60)")
		log.Println("  MAX_CONCURRENT_FETCHES      - Concurrent download cap (default: 5)")
		log.Println("  AUTO_LEAVE_TIMEOUT          - Idle voice-channel timeout in seconds (default: 60)")
		log.Println("  FFMPEG_FILTER_CHAIN         - ffmpeg -af audio filter chain")
		log.Println("  SEARCH_PREFERRED_TERMS      - Comma-separated search ranking terms (default: lyrics)")
		log.Println("")
		log.Println("Database configuration (optional, control-message persistence):")
		log.Println("  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE")
		log.Println("")
		log.Println("Redis configuration (optional, now-playing telemetry):")
		log.Println("  REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB")
		os.Exit(1)
	}

	log.Println("")
	log.Println("Configuration loaded successfully")
	log.Println("---------------------------------")
	log.Printf("  Command Prefix: %s", cfg.CommandPrefix)
	log.Printf("  Cache Dir: %s (budget %d MB, max age %ds)", cfg.CacheDir, cfg.MaxCacheSizeMB, cfg.CacheMaxAge)
	log.Printf("  Buffer: %ds min, %ds timeout, %d kbps estimate", cfg.MinBufferSeconds, cfg.FetchTimeout, cfg.BitrateKbps)
	log.Printf("  Concurrent Fetches: %d", cfg.MaxFetches)
	if cfg.AutoLeaveTimeout > 0 {
		log.Printf("  Auto Leave Timeout: %d seconds", cfg.AutoLeaveTimeout)
	} else {
		log.Printf("  Auto Leave Timeout: disabled")
	}

	log.Println("")
	log.Println("Database:")
	if cfg.DBHost != "" {
		log.Printf("  Host: %s:%d", cfg.DBHost, cfg.DBPort)
		log.Printf("  Database: %s", cfg.DBName)
	} else {
		log.Printf("  Status: not configured (control messages will not survive restarts)")
	}

	log.Println("")
	log.Println("Redis:")
	if cfg.RedisHost != "" {
		log.Printf("  Host: %s:%d", cfg.RedisHost, cfg.RedisPort)
		log.Printf("  Database: %d", cfg.RedisDB)
	} else {
		log.Printf("  Status: not configured (telemetry mirror disabled)")
	}

	log.Println("")
	log.Println("---------------------------------")

	b, err := bot.New(cfg)
	if err != nil {
		log.Fatalf("Error: Failed to create bot: %v", err)
	}

	log.Println("Starting bot...")
	if err := b.Start(); err != nil {
		log.Fatalf("Error: Bot error: %v", err)
	}

	log.Println("Bot is running. Press CTRL+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	if err := b.Stop(); err != nil {
		log.Printf("Error: Failed to stop bot: %v", err)
	}
}
