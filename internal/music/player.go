package music

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	connectAttempts  = 5
	progressInterval = 2 * time.Second
)

// Manager is the process-wide room registry: guild id -> player. It also owns
// the shared fetcher, janitor and now-playing publisher, so every component
// reaches global state through one injected object.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Player

	fetcher       *Fetcher
	janitor       *Janitor
	publisher     *Publisher
	transportOpts TransportOptions
	newTransport  TransportFactory

	// onProgress refreshes any live progress display; onNotice delivers
	// user-visible asynchronous errors. Both are optional hooks installed by
	// the command layer.
	onProgress func(guildID string, state NowPlaying)
	onNotice   func(guildID string, message string)
}

func NewManager(fetcher *Fetcher, janitor *Janitor, publisher *Publisher, transportOpts TransportOptions) *Manager {
	return &Manager{
		rooms:         make(map[string]*Player),
		fetcher:       fetcher,
		janitor:       janitor,
		publisher:     publisher,
		transportOpts: transportOpts,
		newTransport:  NewFFmpegTransport,
	}
}

func (m *Manager) Fetcher() *Fetcher     { return m.fetcher }
func (m *Manager) Publisher() *Publisher { return m.publisher }

func (m *Manager) SetProgressHook(hook func(guildID string, state NowPlaying)) {
	m.onProgress = hook
}

func (m *Manager) SetNoticeHook(hook func(guildID string, message string)) {
	m.onNotice = hook
}

// Room returns the guild's player, creating it on first use.
func (m *Manager) Room(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.rooms[guildID]; ok {
		return p
	}

	p := &Player{
		guildID:   guildID,
		queue:     NewQueue(),
		manager:   m,
		advanceCh: make(chan struct{}, 1),
		quitCh:    make(chan struct{}),
	}
	p.connect = p.joinVoice
	p.connected = p.voiceReady
	go p.loop()

	m.rooms[guildID] = p
	return p
}

// Lookup returns the guild's player without creating one.
func (m *Manager) Lookup(guildID string) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rooms[guildID]
	return p, ok
}

// Remove discards the guild's room state: the player loop exits, pending
// tracks are dropped and their files removed. Irreversible.
func (m *Manager) Remove(guildID string) {
	m.mu.Lock()
	p, ok := m.rooms[guildID]
	delete(m.rooms, guildID)
	m.mu.Unlock()

	if !ok {
		return
	}
	p.shutdown()
}

func (m *Manager) players() []*Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Player, 0, len(m.rooms))
	for _, p := range m.rooms {
		out = append(out, p)
	}
	return out
}

// StartBackground launches the cache sweep, progress ticker and idle-room
// reaper. All stop when the context is cancelled.
func (m *Manager) StartBackground(ctx context.Context, session *discordgo.Session, sweepInterval, reapInterval time.Duration) {
	go m.janitor.Run(ctx, sweepInterval)
	go m.progressLoop(ctx)
	go m.reaperLoop(ctx, session, reapInterval)
}

func (m *Manager) progressLoop(ctx context.Context) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, p := range m.players() {
			track, startedAt := p.nowPlaying()
			if track == nil {
				continue
			}

			elapsed := time.Since(startedAt)
			if track.Duration > 0 && elapsed > track.Duration {
				elapsed = track.Duration
			}

			state := NowPlaying{
				Title:     track.Title,
				Duration:  track.Duration,
				Elapsed:   elapsed,
				StartedAt: startedAt,
			}
			m.publisher.Set(state)
			if m.onProgress != nil {
				m.onProgress(p.guildID, state)
			}
		}
	}
}

// reaperLoop disconnects and discards rooms whose voice channel has no
// non-bot listeners left. No grace period.
func (m *Manager) reaperLoop(ctx context.Context, session *discordgo.Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, p := range m.players() {
			channelID := p.voiceChannelID()
			if channelID == "" {
				continue
			}
			if hasHumanListeners(session, p.guildID, channelID) {
				continue
			}

			log.Printf("no listeners left in guild %s, leaving", p.guildID)
			p.Disconnect()
			m.Remove(p.guildID)
			m.notify(p.guildID, "Left the voice channel: nobody is listening.")
		}
	}
}

func (m *Manager) notify(guildID, message string) {
	if m.onNotice != nil {
		m.onNotice(guildID, message)
		return
	}
	log.Printf("guild %s: %s", guildID, message)
}

func hasHumanListeners(s *discordgo.Session, guildID, channelID string) bool {
	if s == nil || s.State == nil {
		return true
	}
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return true
	}

	botID := ""
	if s.State.User != nil {
		botID = s.State.User.ID
	}

	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == botID {
			continue
		}
		member, err := s.State.Member(guildID, vs.UserID)
		if err != nil || member == nil || member.User == nil || !member.User.Bot {
			return true
		}
	}
	return false
}

// Player drives one room's playback: dequeue, start transport, and on
// completion advance to the next track. Advances are strictly serialized by a
// single consumer loop; completion callbacks and manual triggers only signal.
type Player struct {
	guildID string
	queue   *Queue
	manager *Manager

	advanceCh chan struct{}
	quitCh    chan struct{}
	quitOnce  sync.Once

	mu        sync.Mutex
	session   *discordgo.Session
	vc        *discordgo.VoiceConnection
	channelID string
	current   *Track
	startedAt time.Time
	transport Transport

	controlChannelID string
	controlMessageID string

	// seams for tests; default to the discordgo-backed implementations.
	connect   func() error
	connected func() bool
}

func (p *Player) Queue() *Queue { return p.queue }

func (p *Player) GuildID() string { return p.guildID }

// Connect joins (or moves to) the given voice channel.
func (p *Player) Connect(s *discordgo.Session, channelID string) error {
	if s == nil {
		return fmt.Errorf("%w: discord session is nil", ErrVoiceConnect)
	}
	if channelID == "" {
		return fmt.Errorf("%w: channel id is empty", ErrVoiceConnect)
	}

	p.mu.Lock()
	p.session = s
	p.channelID = channelID
	p.mu.Unlock()

	return p.connect()
}

func (p *Player) joinVoice() error {
	p.mu.Lock()
	s := p.session
	channelID := p.channelID
	current := p.vc
	p.mu.Unlock()

	if current != nil && current.Ready && current.ChannelID == channelID {
		return nil
	}

	vc, err := s.ChannelVoiceJoin(p.guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVoiceConnect, err)
	}

	p.mu.Lock()
	p.vc = vc
	p.mu.Unlock()
	return nil
}

func (p *Player) voiceReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vc != nil && p.vc.Ready
}

func (p *Player) voiceChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vc == nil {
		return ""
	}
	return p.vc.ChannelID
}

// Kick wakes the advance loop. Used after enqueueing when nothing is playing.
func (p *Player) Kick() {
	select {
	case p.advanceCh <- struct{}{}:
	default:
	}
}

func (p *Player) loop() {
	for {
		select {
		case <-p.quitCh:
			return
		case <-p.advanceCh:
			p.advance()
		}
	}
}

// advance is the only place playback state transitions happen. It runs on the
// loop goroutine exclusively.
func (p *Player) advance() {
	if !p.ensureVoice() {
		p.manager.notify(p.guildID, "Could not connect to the voice channel.")
		return
	}

	track := p.queue.DequeueNext()
	if track == nil {
		p.mu.Lock()
		p.current = nil
		p.transport = nil
		p.mu.Unlock()
		p.manager.publisher.Clear()
		return
	}

	// Completion deletes the media file, so a loop-mode replay can point at a
	// path that no longer exists. ffmpeg would start and exit immediately,
	// re-triggering advance in a tight spin; fail the track loudly instead.
	if _, err := os.Stat(track.FilePath); err != nil {
		log.Printf("track file missing in guild %s: %s", p.guildID, track.FilePath)
		p.mu.Lock()
		p.current = nil
		p.transport = nil
		p.mu.Unlock()
		p.manager.publisher.Clear()
		p.manager.notify(p.guildID, "The track's media file is gone and cannot be replayed.")
		return
	}

	now := time.Now()
	p.mu.Lock()
	p.current = track
	p.startedAt = now
	vc := p.vc
	p.mu.Unlock()

	p.manager.publisher.Set(NowPlaying{
		Title:     track.Title,
		Duration:  track.Duration,
		StartedAt: now,
	})
	p.manager.publisher.RecordPlay(p.guildID)

	transport := p.manager.newTransport(vc, p.manager.transportOpts)
	err := transport.Start(track.FilePath, func(playErr error) {
		p.onTrackComplete(track, playErr)
	})
	if err != nil {
		log.Printf("failed to start playback in guild %s: %v", p.guildID, err)
		track.Cleanup()
		p.mu.Lock()
		p.current = nil
		p.transport = nil
		p.mu.Unlock()
		p.manager.notify(p.guildID, "Could not start the track. Check the ffmpeg installation.")
		return
	}

	p.mu.Lock()
	p.transport = transport
	p.mu.Unlock()
}

// onTrackComplete runs on the transport's goroutine when streaming ends for
// any reason. The track's file is deleted exactly once; a mid-stream decoder
// error takes the same path as a normal finish.
func (p *Player) onTrackComplete(track *Track, playErr error) {
	if playErr != nil {
		log.Printf("playback error in guild %s: %v", p.guildID, playErr)
	}
	track.Cleanup()

	if p.connected() {
		p.Kick()
		return
	}

	// One recovery cycle before giving up.
	log.Printf("voice connection lost in guild %s, attempting to reconnect", p.guildID)
	if err := p.connect(); err != nil {
		log.Printf("reconnect failed in guild %s: %v", p.guildID, err)
		p.manager.notify(p.guildID, "Lost the voice connection and could not recover.")
		return
	}
	p.Kick()
}

// ensureVoice verifies a live transport, reconnecting with exponential
// backoff. Gives up after connectAttempts tries without touching the queue.
func (p *Player) ensureVoice() bool {
	if p.connected() {
		return true
	}

	p.mu.Lock()
	haveSession := p.session != nil && p.channelID != ""
	p.mu.Unlock()
	if !haveSession {
		return false
	}

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err := p.connect(); err == nil {
			return true
		} else {
			log.Printf("voice connect attempt %d/%d failed in guild %s: %v", attempt, connectAttempts, p.guildID, err)
		}
		if attempt < connectAttempts {
			time.Sleep(time.Duration(1<<attempt) * time.Second)
		}
	}
	return false
}

func (p *Player) nowPlaying() (*Track, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport == nil || !p.transport.IsPlaying() {
		return nil, time.Time{}
	}
	return p.current, p.startedAt
}

// NowPlayingState snapshots the room's current playback for display.
// The zero value means nothing is playing.
func (p *Player) NowPlayingState() NowPlaying {
	track, startedAt := p.nowPlaying()
	if track == nil {
		return NowPlaying{}
	}

	elapsed := time.Since(startedAt)
	if track.Duration > 0 && elapsed > track.Duration {
		elapsed = track.Duration
	}
	return NowPlaying{
		Title:     track.Title,
		Duration:  track.Duration,
		Elapsed:   elapsed,
		StartedAt: startedAt,
	}
}

// Current returns the track being played, or nil.
func (p *Player) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport != nil && p.transport.IsPlaying()
}

func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport != nil && p.transport.IsPaused()
}

func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport == nil || !p.transport.IsPlaying() {
		return false
	}
	p.transport.Pause()
	return true
}

func (p *Player) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport == nil || !p.transport.IsPaused() {
		return false
	}
	p.transport.Resume()
	return true
}

// Skip stops the current track; completion chains into the next advance.
func (p *Player) Skip() bool {
	p.mu.Lock()
	transport := p.transport
	p.mu.Unlock()

	if transport == nil {
		return false
	}
	transport.Stop()
	return true
}

// Stop halts playback. With clearQueue the pending tracks are discarded and
// their files removed.
func (p *Player) Stop(clearQueue bool) bool {
	if clearQueue {
		for _, t := range p.queue.Clear() {
			t.Cleanup()
		}
	}

	p.mu.Lock()
	transport := p.transport
	p.mu.Unlock()

	if transport == nil {
		return false
	}
	transport.Stop()
	return true
}

// Disconnect leaves the voice channel, stopping playback first.
func (p *Player) Disconnect() {
	p.Stop(true)

	p.mu.Lock()
	vc := p.vc
	p.vc = nil
	p.mu.Unlock()

	if vc != nil {
		_ = vc.Disconnect()
	}
}

func (p *Player) shutdown() {
	p.quitOnce.Do(func() { close(p.quitCh) })
	p.Disconnect()

	if current := p.Current(); current != nil {
		current.Cleanup()
	}
	for _, t := range p.queue.Clear() {
		t.Cleanup()
	}
}

// SetControlMessage records the room's live control-message handle.
func (p *Player) SetControlMessage(channelID, messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controlChannelID = channelID
	p.controlMessageID = messageID
}

func (p *Player) ControlMessage() (channelID, messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controlChannelID, p.controlMessageID
}
