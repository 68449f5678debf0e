package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crudeidle/internal/game"

	"github.com/bwmarrin/discordgo"
)

type fakeSender struct {
	channel string
	content string
	err     error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.content = content
	return &discordgo.Message{Content: content}, f.err
}

func TestNewDiscordUnconfigured(t *testing.T) {
	d, err := NewDiscord("", "")
	if err != nil || d != nil {
		t.Fatalf("unconfigured = %v, %v; want nil, nil", d, err)
	}
	if _, err := NewDiscord("token", " "); err == nil {
		t.Fatalf("expected error for missing channel")
	}
}

func TestNotifyWin(t *testing.T) {
	f := &fakeSender{}
	d := &Discord{api: f, channelID: "123"}
	s := game.Summary{
		Platforms:      []game.Platform{{Kind: game.KindPump, Level: 3, YieldRate: 200}},
		Earned:         900000,
		Spent:          880000,
		ItemsPurchased: 7,
		ItemsTotal:     7,
		Won:            true,
	}
	if err := d.NotifyWin(context.Background(), s); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if f.channel != "123" {
		t.Fatalf("channel=%q", f.channel)
	}
	for _, want := range []string{"Earned: 900000", "Spent: 880000", "Beers: 7/7", "Pump lvl 3, 200/period"} {
		if !strings.Contains(f.content, want) {
			t.Fatalf("message %q missing %q", f.content, want)
		}
	}

	f.err = errors.New("rate limited")
	if err := d.NotifyWin(context.Background(), s); err == nil {
		t.Fatalf("expected send error")
	}
}

func TestFormatWinWithoutPlatforms(t *testing.T) {
	if got := FormatWin(game.Summary{}); !strings.HasSuffix(got, "Platforms: none") {
		t.Fatalf("got %q", got)
	}
}
