package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/itsmostafa/resilindex/internal/checkpoint"
	"github.com/itsmostafa/resilindex/internal/engine"
)

// groupProgress draws a bar over page-group extraction. The bar is created
// lazily because the group count is only known after initialization.
type groupProgress struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newGroupProgress(w io.Writer) *groupProgress {
	return &groupProgress{w: w}
}

// Update is an engine progress hook.
func (p *groupProgress) Update(ev engine.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.TotalGroups == 0 {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(ev.TotalGroups,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(ev.Phase.DisplayName()),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(p.w)
			}),
		)
	}

	p.bar.Describe(ev.Phase.DisplayName())
	_ = p.bar.Set(ev.DoneGroups)
	if ev.Phase == checkpoint.PhaseCompleted {
		_ = p.bar.Finish()
	}
}

// Close clears an unfinished bar so error output starts on a clean line.
func (p *groupProgress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil && !p.bar.IsFinished() {
		_ = p.bar.Clear()
		fmt.Fprintln(p.w)
	}
}

// startSpinner shows an activity spinner with the given suffix. The
// returned function stops it.
func startSpinner(w io.Writer, suffix string) func() {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}
