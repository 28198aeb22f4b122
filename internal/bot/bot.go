package bot

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	redislib "github.com/redis/go-redis/v9"

	"github.com/melodiabot/melodia/config"
	"github.com/melodiabot/melodia/internal/database"
	"github.com/melodiabot/melodia/internal/features"
	"github.com/melodiabot/melodia/internal/music"
	"github.com/melodiabot/melodia/internal/redis"
)

type Bot struct {
	config  *config.Config
	session *discordgo.Session
	manager *music.Manager

	db    *sql.DB
	redis *redislib.Client

	cancelBackground context.CancelFunc
	presenceStop     chan struct{}
	started          bool
}

func New(cfg *config.Config) (*Bot, error) {
	dbConfig := &database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	db, err := database.Open(dbConfig)
	if err != nil {
		log.Printf("Warning: Database initialization failed: %v", err)
		db = nil
	}

	redisClient, err := redis.Connect(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("Warning: Redis initialization failed: %v", err)
		redisClient = nil
	}

	resolver := music.NewYTDLPResolver(cfg.CacheDir, cfg.PreferredTerms)

	fetcher := music.NewFetcher(resolver, cfg.CacheDir, cfg.MaxFetches)
	fetcher.MinBuffer = time.Duration(cfg.MinBufferSeconds) * time.Second
	fetcher.ReadyTimeout = time.Duration(cfg.FetchTimeout) * time.Second
	fetcher.BitrateKbps = cfg.BitrateKbps

	janitor := music.NewJanitor(cfg.CacheDir, cfg.MaxCacheBytes(),
		time.Duration(cfg.CacheMaxAge)*time.Second)

	publisher := music.NewPublisher(redisClient)

	manager := music.NewManager(fetcher, janitor, publisher, music.TransportOptions{
		FilterChain:  cfg.FilterChain,
		Reconnect:    true,
		IgnoreErrors: true,
	})

	s, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	handler := features.New(cfg, manager, database.NewControlMessageRepository(db))
	handler.AddHandlers(s)

	return &Bot{
		config:  cfg,
		session: s,
		manager: manager,
		db:      db,
		redis:   redisClient,
	}, nil
}

func (b *Bot) Start() error {
	if b.started {
		return nil
	}

	if err := os.MkdirAll(b.config.CacheDir, 0o755); err != nil {
		return err
	}

	b.registerHandlers(b.session)

	if err := b.session.Open(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancelBackground = cancel
	b.manager.StartBackground(ctx, b.session,
		time.Duration(b.config.SweepInterval)*time.Second,
		time.Duration(b.config.AutoLeaveTimeout)*time.Second)

	b.startPresenceUpdater()
	b.started = true
	log.Printf("Bot session opened")
	return nil
}

func (b *Bot) registerHandlers(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		if s.State != nil && s.State.User != nil {
			log.Printf("Bot ready as %s#%s", s.State.User.Username, s.State.User.Discriminator)
		} else {
			log.Printf("Bot ready")
		}
		b.updatePresence()
	})
}

func (b *Bot) Stop() error {
	if !b.started {
		return nil
	}

	b.started = false
	b.stopPresenceUpdater()
	if b.cancelBackground != nil {
		b.cancelBackground()
	}

	if err := b.session.Close(); err != nil {
		return err
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			log.Printf("Warning: failed to close database: %v", err)
		}
	}

	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Printf("Warning: failed to close redis: %v", err)
		}
	}

	log.Printf("Bot session closed")
	return nil
}
