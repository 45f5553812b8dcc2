// Package observer keeps the sidebar in sync with the live document. It either
// reacts to tree mutations (debounced) or polls on a fixed interval for hosts
// whose mutation signals are unreliable.
package observer

import (
	"context"
	"fmt"
	"log"
	"sync"

	"outline_assistant/hostview"
	"outline_assistant/metrics"
)

// Features is the cheap summary pushed with every liveTextUpdate.
type Features struct {
	WordCount   int    `json:"wordCount"`
	ReadingTime string `json:"readingTime"`
}

// Update is one observed change of the document text.
type Update struct {
	Text     string
	Metrics  metrics.Snapshot
	Features Features
}

// NewUpdate evaluates text.
func NewUpdate(text string) Update {
	snap := metrics.Compute(text)
	return Update{
		Text:    text,
		Metrics: snap,
		Features: Features{
			WordCount:   snap.WordCount,
			ReadingTime: fmt.Sprintf("%d min", snap.ReadingTimeMinutes),
		},
	}
}

// StopHandle detaches a watcher. Stop is idempotent and, once it returns, no
// further change callback runs. It must not be called from inside the change
// callback itself.
type StopHandle interface {
	Stop()
	Done() <-chan struct{}
}

// Watcher is implemented by every observation strategy.
type Watcher interface {
	Start(ctx context.Context, onChange func(Update)) (StopHandle, error)
}

// TextSource yields the current document text. Sources return
// hostview.ErrExtractionUnavailable while the container is missing.
type TextSource interface {
	Text(ctx context.Context) (string, error)
}

// ViewSource reads text from the live view.
type ViewSource struct {
	Adapter *hostview.Adapter
}

func (v ViewSource) Text(context.Context) (string, error) {
	return v.Adapter.ExtractText()
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	stopped  bool
	lastText string
	onChange func(Update)
}

func newHandle(cancel context.CancelFunc, onChange func(Update)) *handle {
	return &handle{cancel: cancel, done: make(chan struct{}), onChange: onChange}
}

func (h *handle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cancel()
}

func (h *handle) Done() <-chan struct{} { return h.done }

// emit forwards text unless it is empty, unchanged, or the handle is stopped.
func (h *handle) emit(text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || text == "" || text == h.lastText {
		return false
	}
	h.lastText = text
	h.onChange(NewUpdate(text))
	return true
}

func loggerOr(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
