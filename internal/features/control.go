package features

import (
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/melodiabot/melodia/internal/features/shared"
	"github.com/melodiabot/melodia/internal/music"
)

// Control posts the live control message for the room and remembers its
// handle so progress updates can keep editing the same message.
func (h *Handler) Control(s *discordgo.Session, m *discordgo.MessageCreate) {
	player, ok := h.manager.Lookup(m.GuildID)
	if !ok {
		shared.SendEmbed(s, m.ChannelID, "Error", "I am not playing anything.", shared.ColorError)
		return
	}

	embed := controlEmbed(player.NowPlayingState())
	msg, err := s.ChannelMessageSendEmbed(m.ChannelID, embed)
	if err != nil {
		log.Printf("failed to post control message in guild %s: %v", m.GuildID, err)
		shared.SendEmbed(s, m.ChannelID, "Error", "Could not post the control message.", shared.ColorError)
		return
	}

	player.SetControlMessage(m.ChannelID, msg.ID)
	if err := h.controlRepo.Upsert(m.GuildID, m.ChannelID, msg.ID); err != nil {
		log.Printf("failed to persist control message for guild %s: %v", m.GuildID, err)
	}
}

// refreshControlMessage is the manager's progress hook. It edits the room's
// control message in place on every progress tick.
func (h *Handler) refreshControlMessage(guildID string, state music.NowPlaying) {
	s := h.session
	if s == nil {
		return
	}

	channelID, messageID := h.controlHandle(guildID)
	if channelID == "" || messageID == "" {
		return
	}

	embed := controlEmbed(state)
	if _, err := s.ChannelMessageEditEmbed(channelID, messageID, embed); err != nil {
		// The message may have been deleted by a moderator; drop the handle
		// so we stop editing until the next control command.
		log.Printf("failed to refresh control message for guild %s: %v", guildID, err)
		if player, ok := h.manager.Lookup(guildID); ok {
			if ch, _ := player.ControlMessage(); ch == channelID {
				player.SetControlMessage(channelID, "")
			}
		}
	}
}

// controlHandle resolves the control-message handle, preferring the live
// player over the persisted record.
func (h *Handler) controlHandle(guildID string) (channelID, messageID string) {
	if player, ok := h.manager.Lookup(guildID); ok {
		if ch, msg := player.ControlMessage(); ch != "" && msg != "" {
			return ch, msg
		}
	}
	if ch, msg, ok, err := h.controlRepo.Get(guildID); err == nil && ok {
		return ch, msg
	}
	return "", ""
}

func controlEmbed(state music.NowPlaying) *discordgo.MessageEmbed {
	if state.Title == "" {
		return shared.NewEmbed("Now Playing", "Nothing is playing.", shared.ColorInfo)
	}

	embed := shared.NewEmbed("Now Playing", "**"+state.Title+"**", shared.ColorPlaying)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Progress",
		Value: shared.ProgressBar(state.Elapsed, state.Duration),
	})
	return embed
}
