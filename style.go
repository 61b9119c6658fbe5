package main

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	faint     = lipgloss.NewStyle().Faint(true).Render
	success   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	failure   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Render
	heading   = lipgloss.NewStyle().Bold(true).Render
	labelCell = lipgloss.NewStyle().Width(8).Render
)
