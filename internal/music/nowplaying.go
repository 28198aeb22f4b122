package music

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

const (
	nowPlayingKey   = "music:nowplaying"
	statsKeyPrefix  = "music:stats:"
	telemetryExpiry = 24 * time.Hour
)

// Publisher is the single process-wide now-playing state. Writes and reads
// are mutually exclusive; Snapshot always returns a consistent view. When a
// redis client is attached, every update is mirrored there best-effort for
// external telemetry consumers — mirroring is never on the playback path.
type Publisher struct {
	mu    sync.RWMutex
	state NowPlaying

	redis *redislib.Client
}

func NewPublisher(redisClient *redislib.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

func (p *Publisher) Set(state NowPlaying) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()

	p.mirror(state)
}

func (p *Publisher) Snapshot() NowPlaying {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Clear resets the publisher to the idle state.
func (p *Publisher) Clear() {
	p.Set(NowPlaying{})
}

func (p *Publisher) mirror(state NowPlaying) {
	if p.redis == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		values := map[string]interface{}{
			"title":      state.Title,
			"duration":   strconv.FormatInt(int64(state.Duration/time.Second), 10),
			"elapsed":    strconv.FormatInt(int64(state.Elapsed/time.Second), 10),
			"started_at": strconv.FormatInt(state.StartedAt.Unix(), 10),
		}
		if err := p.redis.HSet(ctx, nowPlayingKey, values).Err(); err != nil {
			log.Printf("failed to mirror now-playing state: %v", err)
			return
		}
		_ = p.redis.Expire(ctx, nowPlayingKey, telemetryExpiry).Err()
	}()
}

// RecordPlay bumps the per-guild played-track counter in redis, best effort.
func (p *Publisher) RecordPlay(guildID string) {
	if p.redis == nil || guildID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := p.redis.Incr(ctx, statsKeyPrefix+guildID).Err(); err != nil {
			log.Printf("failed to record play stat: %v", err)
		}
	}()
}
