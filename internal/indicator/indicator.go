// Package indicator draws the "thinking" animation while a completion is
// pending.
package indicator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// Indicator animates a label on a single terminal line
type Indicator struct {
	out     io.Writer
	label   string
	spinner spinner.Spinner
	style   lipgloss.Style
}

// New creates an indicator writing to out. In plain mode the frames are
// dots and no styling is applied.
func New(out io.Writer, plain bool) *Indicator {
	ind := &Indicator{
		out:     out,
		label:   "Thinking",
		spinner: spinner.MiniDot,
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
	}
	if plain {
		ind.spinner = spinner.Spinner{
			Frames: []string{".", "..", "..."},
			FPS:    300 * time.Millisecond,
		}
		ind.style = lipgloss.NewStyle()
	}
	return ind
}

// Start begins animating until ctx is done or stop is called. stop waits for
// the animation goroutine to exit and clears the line before returning; it
// is safe to call more than once.
func (ind *Indicator) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(ind.spinner.FPS)
		defer ticker.Stop()

		width := 0
		for frame := 0; ; frame++ {
			line := fmt.Sprintf("%s %s", ind.style.Render(ind.spinner.Frames[frame%len(ind.spinner.Frames)]), ind.label)
			width = max(width, lipgloss.Width(line))
			fmt.Fprintf(ind.out, "\r%s", line)

			select {
			case <-ctx.Done():
				fmt.Fprintf(ind.out, "\r%s\r", strings.Repeat(" ", width))
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
