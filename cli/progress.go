package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pterm/pterm"
)

const progressInterval = 200 * time.Millisecond

type progressSpinner interface {
	Stop() error
	Success(...any)
	Fail(...any)
	UpdateText(string)
}

type progressSpinnerFactory func(w io.Writer, text string) (progressSpinner, error)

var defaultSpinnerFactory progressSpinnerFactory = func(w io.Writer, text string) (progressSpinner, error) {
	spinner, err := pterm.DefaultSpinner.
		WithWriter(w).
		WithRemoveWhenDone(false).
		WithText(text).
		Start()
	if err != nil {
		return nil, err
	}
	return spinner, nil
}

// detectionProgress polls corner collection counters and shows them on a spinner until finish is
// called. A disabled detectionProgress does nothing.
type detectionProgress struct {
	spinner  progressSpinner
	total    int
	progress func() (processed, found int64)

	done    chan struct{}
	workers sync.WaitGroup
}

func startDetectionProgress(
	w io.Writer,
	enabled bool,
	total int,
	progress func() (processed, found int64),
	clk clock.Clock,
	factory progressSpinnerFactory,
) *detectionProgress {
	p := &detectionProgress{total: total, progress: progress, done: make(chan struct{})}
	if !enabled {
		return p
	}
	spinner, err := factory(w, p.text())
	if err != nil {
		return p
	}
	p.spinner = spinner

	ticker := clk.Ticker(progressInterval)
	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.spinner.UpdateText(p.text())
			}
		}
	}()
	return p
}

func (p *detectionProgress) text() string {
	processed, found := p.progress()
	return fmt.Sprintf("Calibrating: searched %d/%d images, %d with a board", processed, p.total, found)
}

// finish stops polling and leaves a final success or failure line.
func (p *detectionProgress) finish(err error) {
	close(p.done)
	p.workers.Wait()
	if p.spinner == nil {
		return
	}
	if err != nil {
		p.spinner.Fail(err.Error())
		return
	}
	p.spinner.Success(p.text())
}
