package poll

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress display modes.
const (
	ModeAuto  = "auto"
	ModeBar   = "bar"
	ModePlain = "plain"
	ModeNone  = "none"
)

// NewProgress returns an Observer rendering attempts in the requested mode and a finish
// func that must be called once the wait returns. auto behaves like bar when verbose and
// like none otherwise.
func NewProgress(mode string, verbose bool, label string, total int, w io.Writer) (Observer, func()) {
	if mode == ModeAuto {
		mode = ModeNone
		if verbose {
			mode = ModeBar
		}
	}
	switch mode {
	case ModeBar:
		return barProgress(label, total, w)
	case ModePlain:
		return func(attempt int, st Status, err error) {
			fmt.Fprintf(w, "%s: attempt %d/%d status=%s\n", label, attempt, total, st)
		}, func() {}
	default:
		return nil, func() {}
	}
}

func barProgress(label string, total int, w io.Writer) (Observer, func()) {
	p := mpb.New(mpb.WithWidth(40), mpb.WithOutput(w), mpb.WithRefreshRate(100*time.Millisecond))
	var last atomic.Value
	last.Store(Unknown.String())

	name := label + " "
	bar := p.New(int64(total), mpb.BarStyle().Rbound("|").Lbound("|"),
		mpb.PrependDecorators(decor.Name(name, decor.WC{W: len(name), C: decor.DSyncWidth}), decor.CountersNoUnit("%d/%d")),
		mpb.AppendDecorators(decor.Any(func(decor.Statistics) string {
			return last.Load().(string)
		})))

	observe := func(attempt int, st Status, err error) {
		last.Store(st.String())
		bar.SetCurrent(int64(attempt))
	}
	finish := func() {
		if !bar.Completed() {
			bar.Abort(false)
		}
		p.Wait()
		slog.Debug("progress finished", "label", label, "status", last.Load())
	}
	return observe, finish
}
