package ui

import "github.com/charmbracelet/lipgloss"

var TitleStyle = lipgloss.NewStyle().Inline(true).Bold(true).Foreground(lipgloss.Color("252")).Render
var HelpStyle = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("241")).Render
var OffsetStyle = lipgloss.NewStyle().Inline(true).Bold(true).Foreground(lipgloss.Color("#6ea4ff")).Render
var ErrorStyle = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("203")).Render
