package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/AndrewLester/sntp/internal/sugar"
	"github.com/AndrewLester/sntp/internal/ui"
	"github.com/AndrewLester/sntp/pkg/ntpal"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	padding      = 10
	maxWidth     = 80
	tickInterval = 100 * time.Millisecond
)

type tryMessage int
type tickMessage time.Time
type resultMessage struct {
	result *ntpal.QueryResult
	err    error
}

// queryModel shows how far the exchange is through the server list and
// the current server's timeout while firstAnswer runs.
type queryModel struct {
	progress progress.Model
	servers  []ntpal.ServerConfig
	tries    chan int
	run      tea.Cmd
	cancel   context.CancelFunc
	clock    func() time.Time

	current   int
	started   time.Time
	now       time.Time
	canceling bool

	result *ntpal.QueryResult
	err    error
}

func newQueryModel(ctx context.Context, list []ntpal.ServerConfig, fn exchangeFunc) queryModel {
	ctx, cancel := context.WithCancel(ctx)
	tries := make(chan int, len(list))
	return queryModel{
		progress: progress.New(progress.WithScaledGradient("#68b1b1", "#6ea4ff")),
		servers:  list,
		tries:    tries,
		run: func() tea.Msg {
			result, err := firstAnswer(ctx, list, fn, tries)
			return resultMessage{result: result, err: err}
		},
		cancel:  cancel,
		clock:   time.Now,
		current: -1,
	}
}

// showProgress is true for text output on a terminal.
func showProgress(cmd *cobra.Command) bool {
	if output != "text" {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runWithProgress(ctx context.Context, list []ntpal.ServerConfig, fn exchangeFunc) (*ntpal.QueryResult, error) {
	m := newQueryModel(ctx, list, fn)
	defer m.cancel()

	final, err := sugar.RunProgramWithErrors(m)
	if err != nil {
		return nil, err
	}
	return final.(queryModel).result, nil
}

func listenTries(tries <-chan int) tea.Cmd {
	return func() tea.Msg {
		return tryMessage(<-tries)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMessage(t)
	})
}

func (m queryModel) Init() tea.Cmd {
	return tea.Batch(m.run, listenTries(m.tries), tick())
}

func (m queryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The exchange unwinds and reports back with a resultMessage.
			if !m.canceling {
				m.canceling = true
				m.cancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - padding*2 - 4
		if m.progress.Width > maxWidth {
			m.progress.Width = maxWidth
		}
		return m, nil
	case tryMessage:
		m.current = int(msg)
		m.started = m.clock()
		m.now = m.started
		return m, listenTries(m.tries)
	case tickMessage:
		m.now = time.Time(msg)
		return m, tick()
	case resultMessage:
		m.result, m.err = msg.result, msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

// percent counts finished servers plus the spent share of the current
// server's timeout.
func (m queryModel) percent() float64 {
	if m.current < 0 || len(m.servers) == 0 {
		return 0
	}
	budget := m.servers[m.current].Timeout
	if budget <= 0 {
		budget = ntpal.DefaultTimeout
	}
	spent := float64(m.now.Sub(m.started)) / float64(budget)
	spent = math.Max(0, math.Min(spent, 1))
	return (float64(m.current) + spent) / float64(len(m.servers))
}

func (m queryModel) View() (s string) {
	if m.result != nil || m.err != nil {
		return
	}

	s += ui.TitleStyle("NTPal - Query") + "\n\n"
	s += m.progress.ViewAs(m.percent()) + "\n\n"
	if m.current >= 0 {
		s += ui.HelpStyle(fmt.Sprintf("%s (%d/%d)", m.servers[m.current].Host, m.current+1, len(m.servers))) + "\n"
	}
	if m.canceling {
		s += ui.HelpStyle("canceling...") + "\n"
	} else {
		s += ui.HelpStyle("q: cancel") + "\n"
	}
	return
}

func (m queryModel) GetError() error {
	return m.err
}
