package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/coffer/internal/model"
)

// ImportProgress draws a row counter while an import runs. The row total is
// unknown up front, so the bar spins instead of filling.
type ImportProgress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
	failed int
}

// NewImportProgress creates a progress display for one import.
func NewImportProgress(writer io.Writer, description string) *ImportProgress {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return &ImportProgress{bar: bar, writer: writer}
}

// Update records one processed row. It matches the pipeline's progress hook.
func (p *ImportProgress) Update(done int, outcome model.RowOutcome) {
	if !outcome.OK() {
		p.failed++
		p.bar.Describe(fmt.Sprintf("[cyan][bold]Importing[reset] [red]%d failed[reset]", p.failed))
	}
	if err := p.bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Failed returns how many rows failed so far.
func (p *ImportProgress) Failed() int {
	return p.failed
}

// Finish completes the bar.
func (p *ImportProgress) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
