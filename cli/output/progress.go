package output

import (
	"io"
	"math"
	"strings"

	"github.com/pterm/pterm"
)

// Progress renders one transfer. A known total draws a bar; an unknown
// total (downloads) draws a spinner with a running byte count. All methods
// are safe on a nil receiver, which is what StartProgress returns when
// progress output is disabled.
type Progress struct {
	label   string
	bar     *pterm.ProgressbarPrinter
	spinner *pterm.SpinnerPrinter
	done    uint64
}

func StartProgress(enabled bool, label string, total int64) *Progress {
	if !enabled {
		return nil
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = "file"
	}
	p := &Progress{label: label}
	if total > 0 {
		bar, err := pterm.DefaultProgressbar.
			WithTitle(label).
			WithTotal(clampToInt(uint64(total))).
			WithShowElapsedTime(true).
			WithShowCount(false).
			WithRemoveWhenDone(true).
			Start()
		if err == nil {
			p.bar = bar
		}
		return p
	}
	spinner, err := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(label)
	if err == nil {
		p.spinner = spinner
	}
	return p
}

func (p *Progress) add(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.done += uint64(n)
	if p.bar != nil {
		p.bar.Add(n)
	}
	if p.spinner != nil {
		p.spinner.UpdateText(p.label + " " + humanizeSize(p.done))
	}
}

// Writer decorates w so every write advances the display.
func (p *Progress) Writer(w io.Writer) io.Writer {
	if p == nil {
		return w
	}
	return &countingWriter{writer: w, hook: p.add}
}

// Reader decorates r so every read advances the display.
func (p *Progress) Reader(r io.Reader) io.Reader {
	if p == nil {
		return r
	}
	return &countingReader{reader: r, hook: p.add}
}

func (p *Progress) Stop() {
	if p == nil {
		return
	}
	if p.bar != nil {
		_, _ = p.bar.Stop()
	}
	if p.spinner != nil {
		_ = p.spinner.Stop()
	}
}

func clampToInt(v uint64) int {
	if v == 0 {
		return 1
	}
	max := uint64(math.MaxInt32)
	if v > max {
		return int(max)
	}
	return int(v)
}

type countingWriter struct {
	writer io.Writer
	hook   func(int)
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.writer.Write(p)
	if n > 0 && cw.hook != nil {
		cw.hook(n)
	}
	return n, err
}

type countingReader struct {
	reader io.Reader
	hook   func(int)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	if n > 0 && cr.hook != nil {
		cr.hook(n)
	}
	return n, err
}
