package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/search"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/tour"
)

const (
	statusRow  = 0
	plotTop    = 1
	footerRows = 3
	minWidth   = 40
	minHeight  = 12
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// visualizer drives one search run and renders it to the terminal
type visualizer struct {
	screen        tcell.Screen
	width, height int

	ctrl     *search.Controller
	points   []tour.Point
	snap     search.Snapshot
	interval time.Duration
	paused   bool
}

func newVisualizer(ctrl *search.Controller, interval time.Duration) (*visualizer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	v := &visualizer{
		screen:   screen,
		ctrl:     ctrl,
		points:   ctrl.Cities().Points(),
		snap:     ctrl.Snapshot(),
		interval: interval,
	}
	v.width, v.height = screen.Size()
	return v, nil
}

func (v *visualizer) run() {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 16)
	go func() {
		for {
			eventChan <- v.screen.PollEvent()
		}
	}()

	v.draw()
	for {
		select {
		case ev := <-eventChan:
			if !v.handleInput(ev) {
				return
			}
			v.draw()

		case <-ticker.C:
			if !v.paused {
				v.snap = v.ctrl.Step()
			}
			v.draw()
		}
	}
}

func (v *visualizer) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q', 'Q':
				return false
			case 'r', 'R':
				v.ctrl.Restart()
				v.snap = v.ctrl.Snapshot()
			case ' ':
				v.paused = !v.paused
			}
		}

	case *tcell.EventResize:
		v.width, v.height = v.screen.Size()
		v.screen.Sync()
	}

	return true
}

func (v *visualizer) draw() {
	v.screen.Clear()

	if v.width < minWidth || v.height < minHeight {
		v.drawText(0, 0, fmt.Sprintf("terminal too small (need %dx%d)", minWidth, minHeight),
			tcell.StyleDefault.Foreground(tcell.ColorWhite))
		v.screen.Show()
		return
	}

	v.drawStatusBar()
	v.drawPlot()
	v.drawInfo()
	v.drawHistory()
	v.drawHelp()

	v.screen.Show()
}

func (v *visualizer) drawStatusBar() {
	label, color := statusBadge(v.snap)
	x := v.drawText(1, statusRow, label, tcell.StyleDefault.Foreground(color).Bold(true))
	if v.paused {
		v.drawText(x+2, statusRow, "[paused]", tcell.StyleDefault.Foreground(tcell.ColorYellow))
	}

	p := v.ctrl.Params()
	right := fmt.Sprintf("N=%d K=%d T=%d seed=%d", p.Cities, p.Candidates, p.StuckThreshold, p.Seed)
	if start := v.width - len(right) - 1; start > x+2 {
		v.drawText(start, statusRow, right, tcell.StyleDefault.Foreground(tcell.ColorGray))
	}
}

func (v *visualizer) drawPlot() {
	_, color := statusBadge(v.snap)
	edgeStyle := tcell.StyleDefault.Foreground(color)
	cityStyle := edgeStyle.Bold(true)

	plotW := v.width - 2
	plotH := v.height - plotTop - footerRows

	t := v.snap.Tour
	for i := range t {
		// The tour is cyclic, so the last edge wraps back to the start.
		a := v.points[t[i]]
		b := v.points[t[(i+1)%len(t)]]
		x0, y0 := v.cellFor(a, plotW, plotH)
		x1, y1 := v.cellFor(b, plotW, plotH)
		v.drawEdge(x0, y0, x1, y1, edgeStyle)
	}

	for _, p := range v.points {
		x, y := v.cellFor(p, plotW, plotH)
		v.screen.SetContent(x, y, '█', nil, cityStyle)
	}
}

// cellFor maps a unit-square position to a plot cell. The Y axis is
// flipped so the origin sits at the bottom left like a conventional plot.
func (v *visualizer) cellFor(p tour.Point, plotW, plotH int) (int, int) {
	x := 1 + int(p.X*float64(plotW-1)+0.5)
	y := plotTop + int((1-p.Y)*float64(plotH-1)+0.5)
	return x, y
}

// drawEdge plots a Bresenham line between two cells
func (v *visualizer) drawEdge(x0, y0, x1, y1 int, style tcell.Style) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		v.screen.SetContent(x0, y0, '·', nil, style)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func (v *visualizer) drawInfo() {
	info := fmt.Sprintf("Iter %d  Curr %.4f  Best %.4f  Impr %.1f%%  Stuck %d  Optima %d",
		v.snap.Iteration, v.snap.CurrentDistance, v.snap.BestDistance,
		v.snap.ImprovementPct, v.snap.StuckCounter, v.snap.OptimaFound)
	v.drawText(1, v.height-3, info, tcell.StyleDefault.Foreground(tcell.ColorWhite))
}

func (v *visualizer) drawHistory() {
	row := sparkline(v.snap.History, v.width-2)
	style := tcell.StyleDefault.Foreground(tcell.ColorRoyalBlue)
	for i, ch := range row {
		v.screen.SetContent(1+i, v.height-2, ch, nil, style)
	}
}

func (v *visualizer) drawHelp() {
	v.drawText(1, v.height-1, "r restart   space pause   q quit",
		tcell.StyleDefault.Foreground(tcell.ColorGray))
}

// drawText writes a string left to right, clipped at the screen edge,
// and returns the column after the last rune drawn.
func (v *visualizer) drawText(x, y int, text string, style tcell.Style) int {
	col := x
	for _, ch := range text {
		if col >= v.width {
			break
		}
		v.screen.SetContent(col, y, ch, nil, style)
		col++
	}
	return col
}

func (v *visualizer) cleanup() {
	v.screen.Fini()
}

// statusBadge returns the display label and accent color for a run state
func statusBadge(snap search.Snapshot) (string, tcell.Color) {
	switch snap.Status {
	case search.StatusImproving:
		return "▲ Improving", tcell.ColorRoyalBlue
	case search.StatusSearching:
		return fmt.Sprintf("↔ Searching (%d)", snap.StuckCounter), tcell.ColorDarkOrange
	case search.StatusGlobalOptimum:
		return "★ Global Optimum", tcell.ColorMediumSeaGreen
	default:
		return "⚠ Local Optimum", tcell.ColorCrimson
	}
}

// sparkline renders the tail of the distance history as one row of block
// glyphs, normalized over the visible window.
func sparkline(history []float64, width int) []rune {
	if width <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > width {
		history = history[len(history)-width:]
	}

	lo, hi := history[0], history[0]
	for _, d := range history[1:] {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}

	out := make([]rune, len(history))
	for i, d := range history {
		level := 0
		if hi > lo {
			level = int((d - lo) / (hi - lo) * float64(len(sparkLevels)-1))
		}
		out[i] = sparkLevels[level]
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func main() {
	var (
		cities     = flag.Int("n", 50, "number of cities")
		candidates = flag.Int("k", 10, "candidate tours evaluated per step")
		threshold  = flag.Int("t", 50, "consecutive rejections before the run counts as stuck")
		seed       = flag.Int64("seed", 0, "city layout seed, 0 derives one from the clock")
		interval   = flag.Duration("interval", 30*time.Millisecond, "delay between search steps")
	)
	flag.Parse()

	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "tspviz: interval must be positive")
		os.Exit(1)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ctrl, err := search.New(search.Params{
		Cities:         *cities,
		Candidates:     *candidates,
		StuckThreshold: *threshold,
		Seed:           *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tspviz: %v\n", err)
		os.Exit(1)
	}

	viz, err := newVisualizer(ctrl, *interval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tspviz: failed to initialize terminal: %v\n", err)
		os.Exit(1)
	}
	defer viz.cleanup()

	viz.run()
}
