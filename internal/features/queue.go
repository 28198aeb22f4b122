package features

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/melodiabot/melodia/internal/features/shared"
)

func (h *Handler) List(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Queue", "The queue is empty.", shared.ColorInfo)
		return
	}

	var b strings.Builder
	if current := trackStatusLine(player); current != "" {
		fmt.Fprintf(&b, "**Now playing:** _%s_\n\n", current)
	}

	tracks := player.Queue().Tracks()
	if len(tracks) > 0 {
		b.WriteString("**Queue:**\n")
		for i, t := range tracks {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t.Title)
		}
	}

	if b.Len() == 0 {
		b.WriteString("The queue is empty.")
	}
	shared.SendEmbed(s, m.ChannelID, "Queue", b.String(), shared.ColorInfo)
}

// Remove takes the user-facing 1-based index.
func (h *Handler) Remove(s *discordgo.Session, m *discordgo.MessageCreate, args string) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok || player.Queue().Len() == 0 {
		shared.SendEmbed(s, m.ChannelID, "Error", "The queue is empty.", shared.ColorError)
		return
	}

	index, err := parseIndex(args)
	if err != nil {
		shared.SendEmbed(s, m.ChannelID, "Error", "Usage: remove <number>", shared.ColorError)
		return
	}

	removed := player.Queue().RemoveAt(index - 1)
	if removed == nil {
		shared.SendEmbed(s, m.ChannelID, "Error", "Invalid track number.", shared.ColorError)
		return
	}

	// A removed track will never play; release its file now.
	removed.Cleanup()
	shared.SendEmbed(s, m.ChannelID, "Removed",
		fmt.Sprintf("**%s** removed from the queue.", removed.Title), shared.ColorWarning)
}

func (h *Handler) Clear(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Error", "The queue is empty.", shared.ColorError)
		return
	}

	for _, t := range player.Queue().Clear() {
		t.Cleanup()
	}
	shared.SendEmbed(s, m.ChannelID, "Cleared", "The queue was cleared.", shared.ColorSuccess)
}

func (h *Handler) Shuffle(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Error", "The queue is empty.", shared.ColorError)
		return
	}

	player.Queue().Shuffle()
	shared.SendEmbed(s, m.ChannelID, "Shuffled", "The queue was shuffled.", shared.ColorSuccess)
}

func (h *Handler) Loop(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Error", "The queue is empty.", shared.ColorError)
		return
	}

	mode := player.Queue().CycleLoopMode()
	shared.SendEmbed(s, m.ChannelID, "Loop",
		fmt.Sprintf("Loop mode is now **%s**.", mode), shared.ColorSuccess)
}

func parseIndex(args string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(args))
}
