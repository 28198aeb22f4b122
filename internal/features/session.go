package features

import (
	"sync"
	"time"

	"github.com/melodiabot/melodia/internal/music"
)

const pickSessionTTL = 60 * time.Second

// pickSessions holds per-user alternative-search results between the offer
// and the follow-up pick command.
type pickSessions struct {
	mu       sync.Mutex
	sessions map[string]pickSession
}

type pickSession struct {
	results []*music.TrackInfo
	savedAt time.Time
}

func newPickSessions() *pickSessions {
	return &pickSessions{sessions: make(map[string]pickSession)}
}

func pickKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (p *pickSessions) save(guildID, userID string, results []*music.TrackInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[pickKey(guildID, userID)] = pickSession{
		results: results,
		savedAt: time.Now(),
	}
}

// take removes and returns the user's pending results, if still fresh.
func (p *pickSessions) take(guildID, userID string) ([]*music.TrackInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := pickKey(guildID, userID)
	session, ok := p.sessions[key]
	if !ok {
		return nil, false
	}
	delete(p.sessions, key)

	if time.Since(session.savedAt) > pickSessionTTL {
		return nil, false
	}
	return session.results, true
}
