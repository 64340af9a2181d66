package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// DiscordFeed watches one Discord channel and buffers incoming messages
// until the worker polls them. Implements Feed.
type DiscordFeed struct {
	session   *discordgo.Session
	channelID string
	logger    zerolog.Logger

	mu      sync.Mutex
	pending []FeedMessage
}

// NewDiscordFeed connects to Discord and subscribes to message events
// on the given channel.
func NewDiscordFeed(token, channelID string, logger zerolog.Logger) (*DiscordFeed, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	feed := &DiscordFeed{
		session:   session,
		channelID: channelID,
		logger:    logger.With().Str("component", "discord_feed").Logger(),
	}

	session.AddHandler(feed.onMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}

	feed.logger.Info().Str("channel", channelID).Msg("Discord feed connected")
	return feed, nil
}

func (f *DiscordFeed) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if f.channelID != "" && m.ChannelID != f.channelID {
		return
	}
	if m.Content == "" {
		return
	}

	f.mu.Lock()
	f.pending = append(f.pending, FeedMessage{
		Author:  m.Author.Username,
		Content: m.Content,
	})
	// Keep the buffer bounded between polls.
	if len(f.pending) > 64 {
		f.pending = f.pending[len(f.pending)-64:]
	}
	f.mu.Unlock()
}

// Poll drains the buffered messages.
func (f *DiscordFeed) Poll(_ context.Context) ([]FeedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil, nil
	}
	out := f.pending
	f.pending = nil
	return out, nil
}

// Close disconnects from Discord.
func (f *DiscordFeed) Close() error {
	return f.session.Close()
}
