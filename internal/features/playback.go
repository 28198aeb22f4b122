package features

import (
	"github.com/bwmarrin/discordgo"
	"github.com/melodiabot/melodia/internal/features/shared"
	"github.com/melodiabot/melodia/internal/music"
)

func (h *Handler) Pause(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok || !player.Pause() {
		shared.SendEmbed(s, m.ChannelID, "Error", "Nothing is playing.", shared.ColorError)
		return
	}
	shared.SendEmbed(s, m.ChannelID, "Paused", "Playback paused.", shared.ColorInfo)
}

func (h *Handler) Resume(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok || !player.Resume() {
		shared.SendEmbed(s, m.ChannelID, "Error", "Nothing is paused.", shared.ColorError)
		return
	}
	shared.SendEmbed(s, m.ChannelID, "Resumed", "Playback resumed.", shared.ColorInfo)
}

func (h *Handler) Skip(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok || !player.Skip() {
		shared.SendEmbed(s, m.ChannelID, "Error", "Nothing is playing.", shared.ColorError)
		return
	}
	shared.SendEmbed(s, m.ChannelID, "Skipped", "Track skipped.", shared.ColorInfo)
}

func (h *Handler) Stop(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Error", "I am not playing anything.", shared.ColorError)
		return
	}
	player.Stop(true)
	shared.SendEmbed(s, m.ChannelID, "Stopped", "Playback stopped and the queue cleared.", shared.ColorError)
}

func (h *Handler) Leave(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Error", "I am not in a voice channel.", shared.ColorError)
		return
	}

	player.Disconnect()
	h.manager.Remove(m.GuildID)
	// A stale handle is harmless; the next control command overwrites it.
	_ = h.controlRepo.Delete(m.GuildID)
	shared.SendEmbed(s, m.ChannelID, "Disconnected", "Left the voice channel.", shared.ColorError)
}

// trackStatusLine is shared by the list and control displays.
func trackStatusLine(player *music.Player) string {
	current := player.Current()
	if current == nil {
		return ""
	}
	return current.Title
}
