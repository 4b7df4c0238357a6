package dashboard

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	haltStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226")).Background(lipgloss.Color("88"))
)

type updateMsg struct {
	snapshot *Snapshot
}

type tickMsg time.Time

type model struct {
	snapshot *Snapshot
	updateCh <-chan *Snapshot
	width    int
}

func newModel(updateCh <-chan *Snapshot) model {
	return model{snapshot: &Snapshot{}, updateCh: updateCh}
}

func (m model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updateCh
		if !ok {
			return tea.Quit()
		}
		return updateMsg{snapshot: snap}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Bubble Tea 拦截了 Ctrl+C，这里主动补发 SIGINT，
			// 让整套程序走统一的优雅退出链路
			_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case updateMsg:
		m.snapshot = msg.snapshot
		return m, m.waitForUpdate()
	case tickMsg:
		return m, m.tick()
	}
	return m, nil
}

func (m model) View() string {
	snap := m.snapshot
	if snap == nil {
		return "等待数据..."
	}

	var sections []string
	sections = append(sections, m.renderHeader(snap))
	sections = append(sections, m.renderPositions(snap))
	sections = append(sections, m.renderTrades(snap))
	sections = append(sections, dimStyle.Render("  q 退出"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) renderHeader(snap *Snapshot) string {
	uptime := "-"
	if !snap.StartedAt.IsZero() {
		uptime = time.Since(snap.StartedAt).Truncate(time.Second).String()
	}
	pnl := fmt.Sprintf("%+.2f", snap.DailyPnLUSD)
	if snap.DailyPnLUSD >= 0 {
		pnl = gainStyle.Render("$" + pnl)
	} else {
		pnl = lossStyle.Render("$" + pnl)
	}
	title := fmt.Sprintf("fathom | mode=%s | uptime=%s | balance=$%.2f | equity=$%.2f | day pnl=%s",
		snap.Mode, uptime, snap.BalanceUSD, snap.EquityUSD, pnl)
	if snap.Halted {
		title += " " + haltStyle.Render(" HALTED ")
	}
	return headerStyle.Render(title)
}

func (m model) renderPositions(snap *Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("  持仓 (%d)", len(snap.Positions))))
	b.WriteString("\n")
	if len(snap.Positions) == 0 {
		b.WriteString(dimStyle.Render("  （空）"))
		return b.String()
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-10s %-10s %-8s %12s %12s %8s %8s %s\n",
		"SYMBOL", "MINT", "STATE", "ENTRY", "LAST", "PNL%", "AGE", "HIGH")))
	for _, p := range snap.Positions {
		pnlPct := 0.0
		if p.EntryPriceUSD > 0 {
			pnlPct = (p.LastPriceUSD - p.EntryPriceUSD) / p.EntryPriceUSD * 100
		}
		pnlStr := fmt.Sprintf("%+.1f", pnlPct)
		if pnlPct >= 0 {
			pnlStr = gainStyle.Render(pnlStr)
		} else {
			pnlStr = lossStyle.Render(pnlStr)
		}
		age := "-"
		if !p.EntryTime.IsZero() {
			age = time.Since(p.EntryTime).Truncate(time.Second).String()
		}
		b.WriteString(fmt.Sprintf("  %-10s %-10s %-8s %12.8f %12.8f %8s %8s %.8f\n",
			truncate(p.Symbol, 10), truncate(p.Mint, 10), p.State,
			p.EntryPriceUSD, p.LastPriceUSD, pnlStr, age, p.HighWaterUSD))
	}
	return b.String()
}

func (m model) renderTrades(snap *Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("  最近平仓"))
	b.WriteString("\n")
	if len(snap.Trades) == 0 {
		b.WriteString(dimStyle.Render("  （无）"))
		return b.String()
	}
	max := len(snap.Trades)
	if max > 10 {
		max = 10
	}
	for _, t := range snap.Trades[:max] {
		pnl, _ := t.PnLUSD.Float64()
		line := fmt.Sprintf("  %s %-10s %-14s $%+.2f held=%s",
			t.ExitTime.Format("15:04:05"), truncate(t.Symbol, 10), t.ExitReason,
			pnl, t.HoldDuration.Truncate(time.Second))
		if t.IsWin() {
			b.WriteString(gainStyle.Render(line))
		} else {
			b.WriteString(lossStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
