package shared

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

const (
	ColorError   = 0xED4245
	ColorSuccess = 0x57F287
	ColorInfo    = 0x3498DB
	ColorPlaying = 0x5865F2
	ColorWarning = 0xE67E22
)

func NewEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
	}
}

func SendEmbed(s *discordgo.Session, channelID, title, description string, color int) {
	sendEmbedFull(s, channelID, NewEmbed(title, description, color))
}

func SendTrackEmbed(s *discordgo.Session, channelID, title, description string, color int, thumbnail string) {
	embed := NewEmbed(title, description, color)
	if thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumbnail}
	}
	sendEmbedFull(s, channelID, embed)
}

func sendEmbedFull(s *discordgo.Session, channelID string, embed *discordgo.MessageEmbed) {
	if s == nil || channelID == "" {
		return
	}
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		log.Printf("failed to send embed: %v", err)
	}
}
