package sidebar

import (
	"context"
	"errors"
	"log"
	"sync"

	"outline_assistant/applier"
	"outline_assistant/hostview"
	"outline_assistant/messaging"
	"outline_assistant/observer"
	"outline_assistant/outline"
)

// HostConfig wires a Host. Adapter may be nil when the document is only
// reachable through the API; cursor requests are then answered with none.
type HostConfig struct {
	Adapter *hostview.Adapter
	Watcher observer.Watcher
	Applier *applier.Applier
	DocID   string
	Logger  *log.Logger
	Verbose bool
}

// Host is the document side: it streams text changes to the sidebar,
// answers cursor requests and performs insertions.
type Host struct {
	ep     *messaging.Endpoint
	cfg    HostConfig
	logger *log.Logger

	mu      sync.Mutex
	stop    observer.StopHandle
	last    *observer.Update
	visible bool
}

func NewHost(ep *messaging.Endpoint, cfg HostConfig) (*Host, error) {
	if ep == nil {
		return nil, errors.New("messaging endpoint is required")
	}
	if cfg.Watcher == nil {
		return nil, errors.New("change watcher is required")
	}
	if cfg.Applier == nil {
		return nil, errors.New("outline applier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Host{ep: ep, cfg: cfg, logger: logger}, nil
}

func (h *Host) infof(format string, args ...interface{}) {
	if !h.cfg.Verbose {
		return
	}
	h.logger.Printf("[INFO] [host] "+format, args...)
}

// Start registers handlers and begins watching the document.
func (h *Host) Start(ctx context.Context) error {
	h.ep.Handle(messaging.ActionSidebarReady, func(ctx context.Context, _ messaging.Message) {
		h.mu.Lock()
		h.visible = true
		last := h.last
		h.mu.Unlock()
		h.infof("sidebar ready")
		if last != nil {
			h.push(ctx, *last)
		}
	})
	h.ep.Handle(messaging.ActionCloseSidebar, func(context.Context, messaging.Message) {
		h.mu.Lock()
		h.visible = false
		h.mu.Unlock()
		h.infof("sidebar closed")
	})
	h.ep.Handle(messaging.ActionGetCursorPosition, func(ctx context.Context, _ messaging.Message) {
		var pos *hostview.CursorPosition
		if h.cfg.Adapter != nil {
			pos = h.cfg.Adapter.CursorPosition()
		}
		if err := h.ep.Send(ctx, messaging.Message{Action: messaging.ActionCursorPosition, Position: pos}); err != nil {
			h.logger.Printf("[WARN] [host] reply cursor position: %v", err)
		}
	})
	h.ep.Handle(messaging.ActionApplyOutline, func(ctx context.Context, msg messaging.Message) {
		go h.apply(ctx, msg)
	})

	stop, err := h.cfg.Watcher.Start(ctx, func(u observer.Update) {
		h.mu.Lock()
		h.last = &u
		h.mu.Unlock()
		h.push(ctx, u)
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.stop = stop
	h.mu.Unlock()
	return nil
}

// Stop detaches the watcher.
func (h *Host) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.mu.Unlock()
	if stop != nil {
		stop.Stop()
	}
}

// SidebarVisible reports whether the sidebar announced itself and has not closed.
func (h *Host) SidebarVisible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible
}

// ToggleSidebar asks the sidebar to show or hide, optionally on tab.
func (h *Host) ToggleSidebar(ctx context.Context, tab Tab) error {
	return h.ep.Send(ctx, messaging.Message{Action: messaging.ActionToggleSidebar, Tab: string(tab)})
}

func (h *Host) push(ctx context.Context, u observer.Update) {
	features := u.Features
	msg := messaging.Message{Action: messaging.ActionLiveTextUpdate, Data: u.Text, Features: &features}
	if err := h.ep.Send(ctx, msg); err != nil {
		h.logger.Printf("[WARN] [host] push text update: %v", err)
	}
}

func (h *Host) apply(ctx context.Context, msg messaging.Message) {
	reply := messaging.Message{Action: messaging.ActionOutlineApplied, Success: messaging.Bool(true)}

	o, err := outline.Normalize(msg.Outline)
	if err == nil {
		docID := msg.DocID
		if docID == "" {
			docID = h.cfg.DocID
		}
		_, err = h.cfg.Applier.Apply(ctx, o, applier.Target{DocumentID: docID, Cursor: msg.CursorPosition})
	}
	if err != nil {
		reply.Success = messaging.Bool(false)
		reply.Error = applier.FriendlyMessage(err)
		var insErr *applier.InsertionError
		if errors.As(err, &insErr) {
			reply.Error = insErr.Message
		}
	}
	if err := h.ep.Send(ctx, reply); err != nil {
		h.logger.Printf("[WARN] [host] reply outline applied: %v", err)
	}
}
