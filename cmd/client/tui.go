package main

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yitech/candleclock/countdown"
	"github.com/yitech/candleclock/display"
	"github.com/yitech/candleclock/model/candle"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	bullStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	bearStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
	wickStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	axisStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	countdownStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e0b84c"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
)

// ── messages ──────────────────────────────────────────────────────────────────

type seriesMsg struct{ s candle.Series }

type snapshotMsg struct{ s countdown.Snapshot }

type errMsg struct{ err error }

// ── renderer ──────────────────────────────────────────────────────────────────

// chartRenderer is the session.Renderer for the terminal. It hands each new
// series to the bubbletea model through a one-slot channel.
type chartRenderer struct {
	ch       chan candle.Series
	disposed chan struct{}
}

func newChartRenderer() *chartRenderer {
	return &chartRenderer{
		ch:       make(chan candle.Series, 1),
		disposed: make(chan struct{}),
	}
}

func (r *chartRenderer) SetData(s candle.Series) error {
	select {
	case <-r.disposed:
		return fmt.Errorf("chart renderer disposed")
	default:
	}
	// Drop an unread series; only the newest matters.
	select {
	case <-r.ch:
	default:
	}
	r.ch <- s
	return nil
}

func (r *chartRenderer) Dispose() error {
	select {
	case <-r.disposed:
	default:
		close(r.disposed)
	}
	return nil
}

// ── model ─────────────────────────────────────────────────────────────────────

type model struct {
	symbol      string
	interval    string
	nKline      int
	granularity int64

	seriesCh <-chan candle.Series
	snapCh   <-chan countdown.Snapshot
	errCh    <-chan error

	candles []candle.Candle
	snap    countdown.Snapshot
	err     error
	width   int
	height  int
}

func newModel(symbol, interval string, nKline int, granularity int64,
	seriesCh <-chan candle.Series, snapCh <-chan countdown.Snapshot, errCh <-chan error) model {
	return model{
		symbol:      symbol,
		interval:    interval,
		nKline:      nKline,
		granularity: granularity,
		seriesCh:    seriesCh,
		snapCh:      snapCh,
		errCh:       errCh,
	}
}

// ── Init / Update / View ──────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForSeries(m.seriesCh), waitForSnapshot(m.snapCh), waitForErr(m.errCh))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case seriesMsg:
		m.candles = msg.s.Tail(m.nKline).Candles()
		return m, waitForSeries(m.seriesCh)

	case snapshotMsg:
		m.snap = msg.s
		return m, waitForSnapshot(m.snapCh)

	case errMsg:
		m.err = msg.err
		return m, waitForErr(m.errCh)
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "loading…"
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.renderChart())
	b.WriteByte('\n')
	b.WriteString(m.renderFooter())
	return b.String()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func waitForSeries(ch <-chan candle.Series) tea.Cmd {
	return func() tea.Msg {
		return seriesMsg{<-ch}
	}
}

func waitForSnapshot(ch <-chan countdown.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{<-ch}
	}
}

func waitForErr(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		return errMsg{<-ch}
	}
}

// ── header / footer ───────────────────────────────────────────────────────────

func (m model) renderHeader() string {
	if len(m.candles) == 0 {
		return headerStyle.Render(fmt.Sprintf("%s  %s  waiting for data…", m.symbol, m.interval))
	}
	c := m.candles[len(m.candles)-1]
	return headerStyle.Render(fmt.Sprintf(
		"%s  %s  %s  O:%g  H:%g  L:%g  C:%g  %d/%d",
		m.symbol, m.interval, c.OpenTime().UTC().Format("2006-01-02 15:04"),
		c.Open, c.High, c.Low, c.Close,
		len(m.candles), m.nKline,
	))
}

func (m model) renderFooter() string {
	clock := countdownStyle.Render("next close " + display.Format(m.snap, m.granularity))
	line := clock + footerStyle.Render("  [q] quit")
	if m.err != nil {
		line += "  " + errorStyle.Render(m.err.Error())
	}
	return line
}

// ── chart ─────────────────────────────────────────────────────────────────────

const yAxisWidth = 11 // "  12345.67 │"

func (m model) renderChart() string {
	// Reserve: 1 header + chart rows + 1 x-axis line + 1 time-label line + 1 footer
	chartH := m.height - 4
	if chartH < 3 {
		chartH = 3
	}

	candles := m.candles
	chartW := m.width - yAxisWidth
	maxCols := chartW / 2 // each candle occupies 2 chars
	if maxCols < 1 {
		maxCols = 1
	}
	if len(candles) > maxCols {
		candles = candles[len(candles)-maxCols:]
	}

	hi, lo := priceRange(candles)
	if hi == lo {
		hi = lo + 1
	}

	cols := len(candles) * 2
	grid := make([][]string, chartH)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}

	for i, c := range candles {
		renderCandle(grid, c, i*2, chartH, hi, lo)
	}

	var b strings.Builder
	for row := 0; row < chartH; row++ {
		price := rowToPrice(row, chartH, hi, lo)
		label := fmt.Sprintf("%9.2f │", price)
		b.WriteString(axisStyle.Render(label))
		b.WriteString(strings.Join(grid[row], ""))
		b.WriteByte('\n')
	}

	b.WriteString(axisStyle.Render(strings.Repeat("─", yAxisWidth)))
	b.WriteString(axisStyle.Render(strings.Repeat("─", cols)))
	b.WriteByte('\n')

	b.WriteString(strings.Repeat(" ", yAxisWidth))
	b.WriteString(timeLabels(candles))
	b.WriteByte('\n')

	return b.String()
}

// timeLabels places an HH:MM label under every tenth candle.
func timeLabels(candles []candle.Candle) string {
	const labelEvery = 10
	row := []byte(strings.Repeat(" ", len(candles)*2))
	for i := 0; i < len(candles); i += labelEvery {
		label := candles[i].OpenTime().UTC().Format("15:04")
		copy(row[i*2:], label)
	}
	return string(row)
}

// renderCandle paints one candle into the grid at column x (0-indexed, 2 wide).
func renderCandle(grid [][]string, c candle.Candle, x, chartH int, hi, lo float64) {
	style := bullStyle
	if c.Close < c.Open {
		style = bearStyle
	}

	fH := float64(chartH)
	bodyTop := priceToRow(math.Max(c.Open, c.Close), fH, hi, lo)
	bodyBot := priceToRow(math.Min(c.Open, c.Close), fH, hi, lo)
	wickTop := priceToRow(c.High, fH, hi, lo)
	wickBot := priceToRow(c.Low, fH, hi, lo)

	for row := 0; row < chartH; row++ {
		inBody := row >= bodyTop && row <= bodyBot
		inWick := row >= wickTop && row <= wickBot

		var left, right string
		switch {
		case inBody:
			left = style.Render("█")
			right = style.Render("█")
		case inWick:
			left = wickStyle.Render("│")
			right = " "
		default:
			left = " "
			right = " "
		}

		if x < len(grid[row]) {
			grid[row][x] = left
		}
		if x+1 < len(grid[row]) {
			grid[row][x+1] = right
		}
	}
}

// priceToRow converts a price to a grid row (0 = top = high).
func priceToRow(price, chartH float64, hi, lo float64) int {
	if hi == lo {
		return int(chartH) / 2
	}
	row := (hi - price) / (hi - lo) * (chartH - 1)
	r := int(math.Round(row))
	if r < 0 {
		r = 0
	}
	if r >= int(chartH) {
		r = int(chartH) - 1
	}
	return r
}

// rowToPrice is the inverse of priceToRow.
func rowToPrice(row, chartH int, hi, lo float64) float64 {
	if chartH <= 1 {
		return hi
	}
	return hi - float64(row)/float64(chartH-1)*(hi-lo)
}

// priceRange returns the overall high and low across the visible candles.
func priceRange(candles []candle.Candle) (hi, lo float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	hi, lo = candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	return hi, lo
}

