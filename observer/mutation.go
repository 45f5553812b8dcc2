package observer

import (
	"context"
	"errors"
	"log"
	"time"

	"outline_assistant/hostview"
)

// DefaultDebounce coalesces bursts of edits.
const DefaultDebounce = 100 * time.Millisecond

// DefaultBootstrapTimeout bounds the wait for the text container.
const DefaultBootstrapTimeout = 30 * time.Second

// MutationWatcher re-extracts text after the view stops mutating for Debounce.
// It first waits for the text container to exist, since the host editor loads
// lazily.
type MutationWatcher struct {
	Adapter          *hostview.Adapter
	Debounce         time.Duration
	BootstrapTimeout time.Duration
	Logger           *log.Logger
	Verbose          bool
}

func (w *MutationWatcher) Start(ctx context.Context, onChange func(Update)) (StopHandle, error) {
	if w.Adapter == nil {
		return nil, errors.New("mutation watcher requires a view adapter")
	}
	if onChange == nil {
		return nil, errors.New("change callback is required")
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := loggerOr(w.Logger)

	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel, onChange)

	go func() {
		defer close(h.done)

		if err := w.bootstrap(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Printf("[WARN] [observer] text container never appeared: %v", err)
			}
			return
		}

		batches, unsubscribe := w.Adapter.Document().Subscribe(1)
		defer unsubscribe()

		sel := w.Adapter.Selectors()
		if w.Verbose {
			logger.Printf("[INFO] [observer] watching %s for mutations", sel.TextRoot)
		}
		w.extract(h)

		timer := time.NewTimer(debounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-batches:
				timer.Reset(debounce)
			case <-timer.C:
				w.extract(h)
			}
		}
	}()

	return h, nil
}

func (w *MutationWatcher) bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout(w.BootstrapTimeout))
	defer cancel()
	sel := w.Adapter.Selectors()
	return w.Adapter.WaitFor(ctx, sel.TextRoot, sel.FallbackRoot)
}

func (w *MutationWatcher) extract(h *handle) {
	text, err := w.Adapter.ExtractText()
	if err != nil {
		return
	}
	h.emit(text)
}

func bootstrapTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultBootstrapTimeout
	}
	return d
}
