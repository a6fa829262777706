package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Bar represents a simple progress bar
type Bar struct {
	label     string
	out       io.Writer
	total     int
	current   int
	mu        sync.Mutex
	startTime time.Time
	lastPrint time.Time
	done      bool
}

// New creates a new progress bar writing to out.
func New(out io.Writer, label string, total int) *Bar {
	return &Bar{
		label:     label,
		out:       out,
		total:     total,
		startTime: time.Now(),
		lastPrint: time.Now(),
	}
}

// Increment increases the progress counter
func (b *Bar) Increment() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++

	// Update display every 500ms or when complete
	now := time.Now()
	if now.Sub(b.lastPrint) > 500*time.Millisecond || b.current >= b.total {
		b.render()
		b.lastPrint = now
	}
}

// Current returns the number of completed steps.
func (b *Bar) Current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Finish marks the progress as complete
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.done {
		if b.current < b.total {
			b.current = b.total
		}
		b.render()
		fmt.Fprintln(b.out)
		b.done = true
	}
}

func (b *Bar) render() {
	if b.done {
		return
	}

	total := max(b.total, 1)
	current := min(b.current, total)
	percentage := float64(current) / float64(total) * 100
	elapsed := time.Since(b.startTime)

	var eta time.Duration
	if current > 0 {
		avgTime := elapsed / time.Duration(current)
		eta = avgTime * time.Duration(total-current)
	}

	barWidth := 40
	filled := barWidth * current / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(b.out, "\r%s [%s] %d/%d (%.1f%%) - Elapsed: %s - ETA: %s   ",
		b.label,
		bar,
		b.current,
		b.total,
		percentage,
		formatDuration(elapsed),
		formatDuration(eta),
	)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
