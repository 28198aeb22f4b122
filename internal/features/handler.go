package features

import (
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/melodiabot/melodia/config"
	"github.com/melodiabot/melodia/internal/database"
	"github.com/melodiabot/melodia/internal/features/shared"
	"github.com/melodiabot/melodia/internal/music"
)

// Handler routes prefix commands to the music core. Each command is a thin
// adapter over exactly one core operation.
type Handler struct {
	cfg         *config.Config
	manager     *music.Manager
	controlRepo *database.ControlMessageRepository
	session     *discordgo.Session

	picks *pickSessions
}

func New(cfg *config.Config, manager *music.Manager, controlRepo *database.ControlMessageRepository) *Handler {
	return &Handler{
		cfg:         cfg,
		manager:     manager,
		controlRepo: controlRepo,
		picks:       newPickSessions(),
	}
}

// AddHandlers registers the message listener and installs the manager's
// progress/notice hooks.
func (h *Handler) AddHandlers(s *discordgo.Session) {
	h.session = s
	s.AddHandler(h.onMessageCreate)

	h.manager.SetProgressHook(h.refreshControlMessage)
	h.manager.SetNoticeHook(h.sendNotice)
}

func (h *Handler) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s == nil || m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID == "" {
		return
	}

	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, h.cfg.CommandPrefix) {
		return
	}
	content = strings.TrimPrefix(content, h.cfg.CommandPrefix)

	name, args := splitCommand(content)
	if name == "" {
		return
	}

	switch name {
	case "play":
		h.Play(s, m, args)
	case "pick":
		h.Pick(s, m, args)
	case "pause":
		h.Pause(s, m)
	case "resume":
		h.Resume(s, m)
	case "skip":
		h.Skip(s, m)
	case "stop":
		h.Stop(s, m)
	case "clear":
		h.Clear(s, m)
	case "remove":
		h.Remove(s, m, args)
	case "list":
		h.List(s, m)
	case "history":
		h.History(s, m)
	case "stats":
		h.Stats(s, m)
	case "shuffle":
		h.Shuffle(s, m)
	case "loop":
		h.Loop(s, m)
	case "leave":
		h.Leave(s, m)
	case "control":
		h.Control(s, m)
	case "help", "helps":
		h.Help(s, m)
	}
}

func splitCommand(content string) (name, args string) {
	fields := strings.SplitN(content, " ", 2)
	name = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) > 1 {
		args = strings.TrimSpace(fields[1])
	}
	return name, args
}

// sendNotice delivers asynchronous, user-visible playback errors to the
// room's control channel when one is known.
func (h *Handler) sendNotice(guildID, message string) {
	s := h.session
	if s == nil {
		log.Printf("guild %s: %s", guildID, message)
		return
	}

	channelID := h.noticeChannel(guildID)
	if channelID == "" {
		log.Printf("guild %s: %s", guildID, message)
		return
	}

	shared.SendEmbed(s, channelID, "Playback", message, shared.ColorWarning)
}

func (h *Handler) noticeChannel(guildID string) string {
	if player, ok := h.manager.Lookup(guildID); ok {
		if channelID, _ := player.ControlMessage(); channelID != "" {
			return channelID
		}
	}
	if channelID, _, ok, err := h.controlRepo.Get(guildID); err == nil && ok {
		return channelID
	}
	return ""
}

func findUserVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	var guild *discordgo.Guild
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil {
			guild = g
		}
	}
	if guild == nil {
		g, err := s.Guild(guildID)
		if err != nil {
			return ""
		}
		guild = g
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID
		}
	}
	return ""
}
