package observer

import (
	"context"
	"errors"
	"log"
	"time"

	"outline_assistant/hostview"
)

// DefaultPollInterval is used for canvas-rendered editors.
const DefaultPollInterval = 2 * time.Second

// PollWatcher re-reads Source every Interval whether or not anything changed.
// A source that is not available yet is retried on the next tick; if it is
// still unavailable after BootstrapTimeout a warning is logged once and
// polling continues.
type PollWatcher struct {
	Source           TextSource
	Interval         time.Duration
	BootstrapTimeout time.Duration
	Logger           *log.Logger
	Verbose          bool
}

func (w *PollWatcher) Start(ctx context.Context, onChange func(Update)) (StopHandle, error) {
	if w.Source == nil {
		return nil, errors.New("poll watcher requires a text source")
	}
	if onChange == nil {
		return nil, errors.New("change callback is required")
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := loggerOr(w.Logger)

	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel, onChange)

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if w.Verbose {
			logger.Printf("[INFO] [observer] polling every %s", interval)
		}
		deadline := time.Now().Add(bootstrapTimeout(w.BootstrapTimeout))
		ready, warned := false, false

		for {
			text, err := w.Source.Text(ctx)
			switch {
			case err == nil:
				ready = true
				h.emit(text)
			case ctx.Err() != nil:
			case errors.Is(err, hostview.ErrExtractionUnavailable):
				if !ready && !warned && time.Now().After(deadline) {
					warned = true
					logger.Printf("[WARN] [observer] text container never appeared: %v", err)
				}
			default:
				logger.Printf("[WARN] [observer] poll failed: %v", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return h, nil
}
