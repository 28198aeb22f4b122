package features

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/melodiabot/melodia/internal/features/shared"
	"github.com/melodiabot/melodia/internal/music"
)

const (
	playTimeout      = 5 * time.Minute
	playlistMaxItems = 10
	alternativeCount = 10
)

// availabilityErrorTerms mark fetch failures worth offering alternatives for
// (region blocks, removed videos) rather than plain retry advice.
var availabilityErrorTerms = []string{"block", "geo", "unavailable", "private", "removed"}

func (h *Handler) Play(s *discordgo.Session, m *discordgo.MessageCreate, query string) {
	if query == "" {
		shared.SendEmbed(s, m.ChannelID, "Error", "Usage: play <URL or search text>", shared.ColorError)
		return
	}

	channelID := findUserVoiceChannel(s, m.GuildID, m.Author.ID)
	if channelID == "" {
		shared.SendEmbed(s, m.ChannelID, "Error", "You are not in a voice channel.", shared.ColorError)
		return
	}

	player := h.manager.Room(m.GuildID)
	if err := player.Connect(s, channelID); err != nil {
		log.Printf("voice connect failed in guild %s: %v", m.GuildID, err)
		shared.SendEmbed(s, m.ChannelID, "Error", "Could not connect to the voice channel.", shared.ColorError)
		return
	}
	player.SetControlMessage(m.ChannelID, "")

	if strings.Contains(query, "list=") {
		h.playPlaylist(s, m, player, query)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	shared.SendEmbed(s, m.ChannelID, "Fetching", fmt.Sprintf("Looking up **%s**...", query), shared.ColorInfo)

	track, err := h.manager.Fetcher().Fetch(ctx, query)
	if err != nil {
		if isAvailabilityError(err) {
			h.offerAlternatives(s, m, query)
			return
		}
		log.Printf("fetch failed in guild %s: %v", m.GuildID, err)
		shared.SendEmbed(s, m.ChannelID, "Error", "Could not fetch the track. Check the ffmpeg installation.", shared.ColorError)
		return
	}

	h.enqueueAndStart(s, m, player, track)
}

func (h *Handler) enqueueAndStart(s *discordgo.Session, m *discordgo.MessageCreate, player *music.Player, track *music.Track) {
	player.Queue().Enqueue(track)
	shared.SendTrackEmbed(s, m.ChannelID, "Added",
		fmt.Sprintf("**[%s](%s)** added to the queue.", track.Title, track.SourceURL),
		shared.ColorSuccess, track.Thumbnail)

	if !player.IsPlaying() && !player.IsPaused() {
		player.Kick()
	}
}

// playPlaylist expands the playlist and fetches the first entries in
// parallel; entries that fail to fetch are skipped.
func (h *Handler) playPlaylist(s *discordgo.Session, m *discordgo.MessageCreate, player *music.Player, url string) {
	shared.SendEmbed(s, m.ChannelID, "Playlist", "Loading the playlist...", shared.ColorInfo)

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	entries, err := h.manager.Fetcher().Resolver().ResolvePlaylist(ctx, url, playlistMaxItems)
	if err != nil {
		log.Printf("playlist resolve failed in guild %s: %v", m.GuildID, err)
		shared.SendEmbed(s, m.ChannelID, "Error", "Could not load the playlist.", shared.ColorError)
		return
	}

	tracks := make([]*music.Track, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		if entry.WebpageURL == "" {
			continue
		}
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			track, err := h.manager.Fetcher().Fetch(ctx, url)
			if err != nil {
				log.Printf("playlist entry fetch failed: %v", err)
				return
			}
			tracks[i] = track
		}(i, entry.WebpageURL)
	}
	wg.Wait()

	loaded := make([]*music.Track, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			loaded = append(loaded, t)
		}
	}

	if len(loaded) == 0 {
		shared.SendEmbed(s, m.ChannelID, "Error", "Could not fetch any playlist tracks.", shared.ColorError)
		return
	}

	player.Queue().EnqueueAll(loaded)
	shared.SendEmbed(s, m.ChannelID, "Added",
		fmt.Sprintf("Added %d track(s) to the queue.", len(loaded)), shared.ColorSuccess)

	if !player.IsPlaying() && !player.IsPaused() {
		player.Kick()
	}
}

// offerAlternatives searches for replacement candidates when a track is
// unavailable and stores them for a follow-up pick command.
func (h *Handler) offerAlternatives(s *discordgo.Session, m *discordgo.MessageCreate, query string) {
	shared.SendEmbed(s, m.ChannelID, "Alternatives",
		"That track is unavailable here. Searching for alternatives...", shared.ColorWarning)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results, err := h.manager.Fetcher().Resolver().Search(ctx, query, alternativeCount)
	if err != nil || len(results) == 0 {
		shared.SendEmbed(s, m.ChannelID, "Error", "No alternatives found.", shared.ColorError)
		return
	}

	h.picks.save(m.GuildID, m.Author.ID, results)

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
	}
	fmt.Fprintf(&b, "\nReply with `%spick <number>` to choose.", h.cfg.CommandPrefix)
	shared.SendEmbed(s, m.ChannelID, "Alternatives", b.String(), shared.ColorInfo)
}

// Pick resolves a previously offered alternative by number.
func (h *Handler) Pick(s *discordgo.Session, m *discordgo.MessageCreate, args string) {
	results, ok := h.picks.take(m.GuildID, m.Author.ID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Error", "Nothing to pick from. Use play first.", shared.ColorError)
		return
	}

	index, err := parseIndex(args)
	if err != nil || index < 1 || index > len(results) {
		shared.SendEmbed(s, m.ChannelID, "Cancelled", "Invalid number; alternative search cancelled.", shared.ColorWarning)
		return
	}

	choice := results[index-1]
	if choice.WebpageURL == "" {
		shared.SendEmbed(s, m.ChannelID, "Error", "That entry has no usable URL.", shared.ColorError)
		return
	}

	h.Play(s, m, choice.WebpageURL)
}

func isAvailabilityError(err error) bool {
	if !errors.Is(err, music.ErrFetchFailed) && !errors.Is(err, music.ErrResolveFailed) {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, term := range availabilityErrorTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
