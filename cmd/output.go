package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	// titleStyle for bold red headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	// boxStyle for the run summary
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("160")).
			Padding(0, 1)

	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("160")).
			Padding(0, 1)
)

// runHeader describes an index run before it starts.
type runHeader struct {
	Document string
	Kind     string
	Model    string
	WorkDir  string
}

// formatHeader renders the run header with configuration info
func formatHeader(w io.Writer, h runHeader) {
	content := fmt.Sprintf("%s %s  %s %s\n%s %s\n%s %s",
		dimStyle.Render("Input:"), titleStyle.Render(h.Kind),
		dimStyle.Render("Model:"), titleStyle.Render(h.Model),
		dimStyle.Render("Document:"), h.Document,
		dimStyle.Render("Checkpoints:"), h.WorkDir,
	)
	fmt.Fprintln(w, headerBoxStyle.Render(content))
}

// runSummary describes a finished index run.
type runSummary struct {
	Output   string
	Nodes    int
	Pages    int
	Groups   int
	Resumed  bool
	Duration time.Duration
}

// formatSummary renders the summary box for a successful run
func formatSummary(w io.Writer, s runSummary) {
	resumed := dimStyle.Render("fresh run")
	if s.Resumed {
		resumed = warnStyle.Render("resumed")
	}

	line1 := fmt.Sprintf("%s %.1fs  %s %s  %s %s",
		dimStyle.Render("Duration:"), s.Duration.Seconds(),
		dimStyle.Render("Nodes:"), formatNumber(s.Nodes),
		dimStyle.Render("Run:"), resumed,
	)
	if s.Pages > 0 {
		line1 += fmt.Sprintf("  %s %s in %d groups",
			dimStyle.Render("Pages:"), formatNumber(s.Pages), s.Groups)
	}
	line2 := fmt.Sprintf("%s %s  %s",
		dimStyle.Render("Output:"), s.Output,
		successStyle.Render("OK"),
	)

	content := titleStyle.Render("Index Complete") + "\n" + line1 + "\n" + line2
	fmt.Fprintln(w, boxStyle.Render(content))
}

// formatFailure renders a failed run and how to continue it
func formatFailure(w io.Writer, document string, err error, resumable bool) {
	content := fmt.Sprintf("%s %s\n%s %v",
		errorStyle.Render("FAILED"), document,
		dimStyle.Render("Reason:"), err,
	)
	if resumable {
		content += "\n" + dimStyle.Render("Progress is saved; run the same command again to resume.")
	} else {
		content += "\n" + dimStyle.Render("Inspect with `resilindex status` or start over with `resilindex reset`.")
	}
	fmt.Fprintln(w, boxStyle.Render(content))
}

// formatNumber adds commas to large numbers for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

// interactive reports whether f is a terminal worth drawing progress on.
func interactive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
