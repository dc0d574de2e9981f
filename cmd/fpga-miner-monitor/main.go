// fpga-miner-monitor: operator dashboard for fpga-miner-host
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fpgaminer/internal/statusapi"
)

var apiAddr = flag.String("api-addr", "http://127.0.0.1:8090", "fpga-miner-host status API base URL")

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#1D4ED8")).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	safeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E"))
	unsafeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	daggingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	copyNoticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Italic(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	rowStyle       = lipgloss.NewStyle().Padding(0, 1)
	selectedRowStyle = rowStyle.Copy().Background(lipgloss.Color("#374151"))
)

const pollInterval = 3 * time.Second

type devicesMsg struct {
	devices []statusapi.DeviceStatus
	err     error
}

type tickMsg time.Time

type model struct {
	apiAddr  string
	devices  []statusapi.DeviceStatus
	selected int
	lastPoll time.Time
	err      error
	notice   string
	width    int
}

func newModel(apiAddr string) model {
	return model{apiAddr: apiAddr}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(pollCmd(m.apiAddr), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollCmd(apiAddr string) tea.Cmd {
	return func() tea.Msg {
		client := http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(apiAddr + "/api/v1/devices")
		if err != nil {
			return devicesMsg{err: fmt.Errorf("poll status API: %w", err)}
		}
		defer resp.Body.Close()

		var devices []statusapi.DeviceStatus
		if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
			return devicesMsg{err: fmt.Errorf("decode status response: %w", err)}
		}
		sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
		return devicesMsg{devices: devices}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(pollCmd(m.apiAddr), tickCmd())

	case devicesMsg:
		m.lastPoll = time.Now()
		m.err = msg.err
		if msg.err == nil {
			m.devices = msg.devices
			if m.selected >= len(m.devices) {
				m.selected = 0
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "j":
			if m.selected < len(m.devices)-1 {
				m.selected++
			}
			return m, nil
		case "c":
			m.notice = m.copySelectedSummary()
			return m, nil
		}
	}
	return m, nil
}

// copySelectedSummary puts the currently selected device's stats on the
// clipboard, mirroring internal/cli/ui's "copy chat response" keybinding.
func (m model) copySelectedSummary() string {
	if m.selected >= len(m.devices) {
		return ""
	}
	d := m.devices[m.selected]
	summary := fmt.Sprintf(
		"device %d (%s): clock=%.1fMHz temp=%.1fC voltage=%.3fV hash10m=%.2fMH/s hash60m=%.2fMH/s hbm_safe=%v dagging=%v",
		d.Index, d.UniqueID, d.ClockMHz, d.TempC, d.VoltageV, d.Hash10Min, d.Hash60Min, d.HBMSafe, d.Dagging)
	if err := clipboard.WriteAll(summary); err != nil {
		return "copy failed: " + err.Error()
	}
	return "copied device summary to clipboard"
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf(" fpga-miner-monitor — %s ", m.apiAddr)))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n\n")
	}

	if len(m.devices) == 0 {
		b.WriteString("no devices reporting yet\n\n")
	}

	for i, d := range m.devices {
		line := fmt.Sprintf("%-3d %-16s clk=%6.1fMHz  temp=%5.1fC  v=%.3fV  10m=%6.2fMH/s  60m=%6.2fMH/s  %s  %s",
			d.Index, d.UniqueID, d.ClockMHz, d.TempC, d.VoltageV, d.Hash10Min, d.Hash60Min,
			hbmLabel(d.HBMSafe), daggingLabel(d.Dagging))

		style := rowStyle
		if i == m.selected {
			style = selectedRowStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(copyNoticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("last poll %s — up/down select, c copy, q quit", m.lastPoll.Format(time.TimeOnly))))
	b.WriteString("\n")

	return b.String()
}

func hbmLabel(safe bool) string {
	if safe {
		return safeStyle.Render("hbm:ok")
	}
	return unsafeStyle.Render("hbm:FAULT")
}

func daggingLabel(dagging bool) string {
	if dagging {
		return daggingStyle.Render("dagging")
	}
	return "searching"
}

func main() {
	flag.Parse()

	p := tea.NewProgram(newModel(*apiAddr))
	if _, err := p.Run(); err != nil {
		fmt.Println("fpga-miner-monitor:", err)
	}
}
