package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CommandPrefix != "!" {
		t.Errorf("CommandPrefix = %q", cfg.CommandPrefix)
	}
	if cfg.CacheDir != "music_cache" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.MinBufferSeconds != 10 || cfg.FetchTimeout != 60 || cfg.MaxFetches != 5 || cfg.BitrateKbps != 320 {
		t.Errorf("buffer defaults = %d/%d/%d/%d", cfg.MinBufferSeconds, cfg.FetchTimeout, cfg.MaxFetches, cfg.BitrateKbps)
	}
	if cfg.CacheMaxAge != 3600 || cfg.SweepInterval != 3600 {
		t.Errorf("cache defaults = %d/%d", cfg.CacheMaxAge, cfg.SweepInterval)
	}
	if cfg.AutoLeaveTimeout != 60 {
		t.Errorf("AutoLeaveTimeout = %d", cfg.AutoLeaveTimeout)
	}
	if got := cfg.MaxCacheBytes(); got != 1024*1024*1024 {
		t.Errorf("MaxCacheBytes = %d", got)
	}
	if len(cfg.PreferredTerms) != 1 || cfg.PreferredTerms[0] != "lyrics" {
		t.Errorf("PreferredTerms = %v", cfg.PreferredTerms)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without a token")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("MAX_CACHE_SIZE_MB", "64")
	t.Setenv("SEARCH_PREFERRED_TERMS", "lyrics, audio ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CommandPrefix != "?" {
		t.Errorf("CommandPrefix = %q", cfg.CommandPrefix)
	}
	if cfg.MaxCacheSizeMB != 64 {
		t.Errorf("MaxCacheSizeMB = %d", cfg.MaxCacheSizeMB)
	}
	if len(cfg.PreferredTerms) != 2 || cfg.PreferredTerms[0] != "lyrics" || cfg.PreferredTerms[1] != "audio" {
		t.Errorf("PreferredTerms = %v", cfg.PreferredTerms)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			DiscordToken:     "token",
			CommandPrefix:    "!",
			MaxCacheSizeMB:   1024,
			CacheMaxAge:      3600,
			MinBufferSeconds: 10,
			FetchTimeout:     60,
			MaxFetches:       5,
			BitrateKbps:      320,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	mutations := []func(*Config){
		func(c *Config) { c.CommandPrefix = "" },
		func(c *Config) { c.MaxCacheSizeMB = 0 },
		func(c *Config) { c.CacheMaxAge = 0 },
		func(c *Config) { c.MinBufferSeconds = 0 },
		func(c *Config) { c.FetchTimeout = 0 },
		func(c *Config) { c.MaxFetches = 0 },
		func(c *Config) { c.BitrateKbps = 4 },
	}
	for i, mutate := range mutations {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("mutation %d passed validation", i)
		}
	}
}
