// Package notify announces a won game to a Discord channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"crudeidle/internal/game"

	"github.com/bwmarrin/discordgo"
)

type sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Discord struct {
	api       sender
	channelID string
}

// NewDiscord returns nil, nil when token is empty: notifications are off.
func NewDiscord(token, channelID string) (*Discord, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{api: session, channelID: channelID}, nil
}

func (d *Discord) NotifyWin(ctx context.Context, s game.Summary) error {
	if _, err := d.api.ChannelMessageSend(d.channelID, FormatWin(s), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func FormatWin(s game.Summary) string {
	var b strings.Builder
	b.WriteString("**Every beer is bought. The oil field is won!**\n")
	fmt.Fprintf(&b, "Earned: %d\nSpent: %d\n", s.Earned, s.Spent)
	fmt.Fprintf(&b, "Beers: %d/%d\n", s.ItemsPurchased, s.ItemsTotal)
	if len(s.Platforms) == 0 {
		b.WriteString("Platforms: none")
		return b.String()
	}
	fmt.Fprintf(&b, "Platforms (%d):", len(s.Platforms))
	for _, p := range s.Platforms {
		fmt.Fprintf(&b, "\n- %s lvl %d, %d/period", p.Kind, p.Level, p.YieldRate)
	}
	return b.String()
}
