package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jbgalet/adcp/pkg/graph"
)

var errPickerAborted = errors.New("selection aborted")

type pickItem string

func (i pickItem) Title() string       { return graph.Shortname(string(i)) }
func (i pickItem) Description() string { return string(i) }
func (i pickItem) FilterValue() string { return string(i) }

type pickerModel struct {
	list   list.Model
	choice string
	abort  bool
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(pickItem); ok {
				m.choice = string(item)
			}
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			m.abort = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string { return m.list.View() }

// pickEntity prompts the user to choose one of several selector matches.
func pickEntity(selector string, matches []string) (string, error) {
	items := make([]list.Item, 0, len(matches))
	for _, match := range matches {
		items = append(items, pickItem(match))
	}

	l := list.New(items, list.NewDefaultDelegate(), 80, 20)
	l.Title = fmt.Sprintf("Multiple matches for %q", selector)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)

	final, err := tea.NewProgram(pickerModel{list: l}).Run()
	if err != nil {
		return "", err
	}

	m, ok := final.(pickerModel)
	if !ok || m.abort || m.choice == "" {
		return "", errPickerAborted
	}
	return m.choice, nil
}
