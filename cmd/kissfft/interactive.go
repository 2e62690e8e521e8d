package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/config"
	"github.com/wippyai/kissfft/fft"
)

func init() {
	rootCmd.AddCommand(newTUICmd())
}

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:     "tui",
		Aliases: []string{"i"},
		Short:   "Explore sessions interactively",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runInteractive(cfg, logger)
		},
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type kindInfo struct {
	kind  kissfft.Kind
	name  string
	shape string
}

var kinds = []kindInfo{
	{kissfft.KindComplex, "complex 1-D", "16"},
	{kissfft.KindReal, "real 1-D", "16"},
	{kissfft.KindNDComplex, "complex N-D", "4x4"},
	{kissfft.KindNDReal, "real N-D", "4x4"},
}

// Input field order.
const (
	fieldShape = iota
	fieldInput
	fieldNorm
	fieldDirection
	numFields
)

var fieldHints = [numFields]string{
	"e.g. 16 or 4x4",
	"comma separated, empty for impulse",
	"backward | ortho | none",
	"forward | inverse",
}

type modelState int

const (
	stateSelectKind modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	cfg      config.Config
	logger   *zap.Logger
	fft      *fft.Context
	result   string
	status   string
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

func newInteractiveModel(cfg config.Config, logger *zap.Logger) *interactiveModel {
	return &interactiveModel{
		cfg:    cfg,
		logger: logger,
		state:  stateSelectKind,
	}
}

type loadedMsg struct {
	err error
	fft *fft.Context
}

type resultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadEngine
}

func (m *interactiveModel) loadEngine() tea.Msg {
	c, err := fft.New(context.Background(),
		fft.WithEngineConfig(m.cfg.Engine(m.logger)),
		fft.WithLogger(m.logger))
	return loadedMsg{err: err, fft: c}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectKind && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectKind && m.selected < len(kinds)-1 {
				m.selected++
			}

		case "c":
			if m.state == stateSelectKind && m.fft != nil {
				if err := m.fft.Cleanup(); err != nil {
					m.status = errorStyle.Render(err.Error())
				} else {
					m.status = "plan cache cleared"
				}
			}

		case "enter":
			switch m.state {
			case stateSelectKind:
				if m.fft == nil {
					return m, nil
				}
				m.prepareInputs()
				m.state = stateInputArgs
				m.status = ""
				return m, nil

			case stateInputArgs:
				return m, m.transform

			case stateShowResult:
				m.state = stateSelectKind
				m.result = ""
				m.err = nil
			}

		case "tab", "shift+tab":
			if m.state == stateInputArgs {
				m.inputs[m.focusIdx].Blur()
				step := 1
				if msg.String() == "shift+tab" {
					step = len(m.inputs) - 1
				}
				m.focusIdx = (m.focusIdx + step) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectKind
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectKind
				m.result = ""
				m.err = nil
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.fft = msg.fft

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) close() {
	if m.fft != nil {
		m.fft.Close(context.Background())
	}
}

func (m *interactiveModel) prepareInputs() {
	k := kinds[m.selected]
	prompts := [numFields]string{"shape: ", "input: ", "norm: ", "direction: "}
	values := [numFields]string{k.shape, "", "backward", "forward"}
	m.inputs = make([]textinput.Model, numFields)
	for i := range m.inputs {
		ti := textinput.New()
		ti.Prompt = prompts[i]
		ti.Placeholder = fieldHints[i]
		ti.SetValue(values[i])
		ti.Width = 48
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) transform() tea.Msg {
	k := kinds[m.selected]
	req := request{
		Kind:    k.kind.String(),
		Shape:   m.inputs[fieldShape].Value(),
		Norm:    m.inputs[fieldNorm].Value(),
		Inverse: strings.EqualFold(strings.TrimSpace(m.inputs[fieldDirection].Value()), "inverse"),
	}
	if raw := m.inputs[fieldInput].Value(); strings.TrimSpace(raw) != "" {
		vals, err := parseFloats(raw)
		if err != nil {
			return resultMsg{err: err}
		}
		req.Input = vals
	}

	resp, err := runTransform(m.fft, req)
	if err != nil {
		return resultMsg{err: err}
	}
	return resultMsg{result: formatOutput(resp.Output, complexOutput(k.kind, req.Inverse))}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.fft == nil {
		return "Loading engine..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("KISS FFT"))
	b.WriteString(" ")
	b.WriteString(m.engineLine())
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectKind:
		b.WriteString("Select a transform:\n\n")
		for i, k := range kinds {
			line := fmt.Sprintf("%-4s %s", k.kind, k.name)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + kindStyle.Render(line))
			}
			b.WriteString("\n")
		}
		if m.status != "" {
			b.WriteString("\n")
			b.WriteString(m.status)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter configure • c clear plans • q quit"))

	case stateInputArgs:
		k := kinds[m.selected]
		b.WriteString(fmt.Sprintf("Configure %s\n\n", kindStyle.Render(k.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(hintStyle.Render(fieldHints[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateShowResult:
		k := kinds[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", kindStyle.Render(k.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) engineLine() string {
	st := m.fft.Engine().Stats()
	cs := m.fft.CacheStats()
	return hintStyle.Render(fmt.Sprintf("%s engine • %d live blocks • %d KiB • plans %v",
		st.Variant, st.LiveBlocks, st.MemoryBytes/1024, cs.Keys))
}

func runInteractive(cfg config.Config, logger *zap.Logger) error {
	p := tea.NewProgram(newInteractiveModel(cfg, logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
