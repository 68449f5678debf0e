package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cl "crudeidle/internal/cli"
	"crudeidle/internal/game"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	balanceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	earnedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

func newWatchCmd(apiBase *string) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the balance live as settlements land",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(apiBase)
			if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
				return watchPlain(cmd.Context(), client)
			}
			return watchTUI(cmd.Context(), client)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print one line per update instead of the live view")
	return cmd
}

func watchPlain(ctx context.Context, client *cl.Client) error {
	return client.Watch(ctx, func(u game.Update) error {
		fmt.Printf("%s balance=%s just_earned=%s\n", time.Now().Format("15:04:05"), formatAmount(u.Balance), formatAmount(u.JustEarned))
		return nil
	})
}

type updateMsg game.Update

type watchDoneMsg struct {
	err error
}

type watchModel struct {
	spinner  spinner.Model
	update   game.Update
	received int
	lastAt   time.Time
	err      error
}

func newWatchModel() watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = mutedStyle
	return watchModel{spinner: s}
}

func (m watchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case updateMsg:
		m.update = game.Update(msg)
		m.received++
		m.lastAt = time.Now()
	case watchDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	body := titleStyle.Render("crude idle") + "\n\n"
	if m.received == 0 {
		body += m.spinner.View() + " waiting for the first settlement..."
	} else {
		body += "Balance      " + balanceStyle.Render(formatAmount(m.update.Balance)) + "\n"
		body += "Last tick    " + earnedStyle.Render("+"+formatAmount(m.update.JustEarned)) + "\n"
		body += mutedStyle.Render(fmt.Sprintf("%s %d updates, last at %s", m.spinner.View(), m.received, m.lastAt.Format("15:04:05")))
	}
	if m.err != nil {
		body += "\n" + errorStyle.Render(m.err.Error())
	}
	return boxStyle.Render(body) + "\n" + mutedStyle.Render("q to quit") + "\n"
}

func watchTUI(ctx context.Context, client *cl.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWatchModel())
	go func() {
		err := client.Watch(ctx, func(u game.Update) error {
			p.Send(updateMsg(u))
			return nil
		})
		p.Send(watchDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
