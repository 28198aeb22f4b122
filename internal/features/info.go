package features

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/melodiabot/melodia/internal/features/shared"
)

const historyDisplayLimit = 10

func (h *Handler) History(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "History", "The history is empty.", shared.ColorWarning)
		return
	}

	entries := player.Queue().History(historyDisplayLimit)
	if len(entries) == 0 {
		shared.SendEmbed(s, m.ChannelID, "History", "The history is empty.", shared.ColorWarning)
		return
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s (%s)\n", e.Title, e.PlayedAt.UTC().Format("15:04:05"))
	}
	shared.SendEmbed(s, m.ChannelID, "History", b.String(), shared.ColorInfo)
}

func (h *Handler) Stats(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Stats", "No stats for this server yet.", shared.ColorWarning)
		return
	}

	shared.SendEmbed(s, m.ChannelID, "Stats",
		fmt.Sprintf("Tracks played: **%d**", player.Queue().PlayCount()), shared.ColorInfo)
}

func (h *Handler) Help(s *discordgo.Session, m *discordgo.MessageCreate) {
	prefix := h.cfg.CommandPrefix
	commands := []struct {
		name, description string
	}{
		{"play <URL/query>", "Play a track or playlist"},
		{"pick <number>", "Choose an offered alternative"},
		{"pause", "Pause playback"},
		{"resume", "Resume playback"},
		{"skip", "Skip the current track"},
		{"list", "Show the queue"},
		{"remove <number>", "Remove a track from the queue"},
		{"clear", "Clear the queue"},
		{"shuffle", "Shuffle the queue"},
		{"loop", "Cycle the loop mode (none/single/all)"},
		{"stop", "Stop playback and clear the queue"},
		{"history", "Show recently played tracks"},
		{"stats", "Show playback statistics"},
		{"control", "Post the live control message"},
		{"leave", "Leave the voice channel"},
	}

	embed := shared.NewEmbed("Commands", "", shared.ColorPlaying)
	for _, c := range commands {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  prefix + c.name,
			Value: c.description,
		})
	}
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		shared.SendEmbed(s, m.ChannelID, "Error", "Could not send the help message.", shared.ColorError)
	}
}
