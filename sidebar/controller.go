package sidebar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"outline_assistant/hostview"
	"outline_assistant/messaging"
	"outline_assistant/metrics"
	"outline_assistant/observer"
	"outline_assistant/outline"
)

var (
	// ErrStale means a newer generation request replaced this one.
	ErrStale = errors.New("outline superseded by a newer request")
	// ErrNoOutline means there is nothing to apply yet.
	ErrNoOutline = errors.New("no outline to apply")
)

// OutlineGenerator is satisfied by *generator.Generator.
type OutlineGenerator interface {
	Generate(ctx context.Context, text string, cursor *hostview.CursorPosition) (outline.Outline, error)
}

// ControllerConfig tunes a Controller. Zero values pick defaults.
type ControllerConfig struct {
	DocID         string
	CursorTimeout time.Duration
	ApplyTimeout  time.Duration
	Now           func() time.Time
	// OnChange is called after every state change with a fresh snapshot.
	OnChange func(State)
	Logger   *log.Logger
	Verbose  bool
}

// Controller is the sidebar side. It owns the Session, keeps metrics in step
// with the host text, and drives generation and insertion.
type Controller struct {
	ep      *messaging.Endpoint
	gen     OutlineGenerator
	session *Session
	cfg     ControllerConfig
	logger  *log.Logger
}

func NewController(ep *messaging.Endpoint, gen OutlineGenerator, session *Session, cfg ControllerConfig) (*Controller, error) {
	if ep == nil {
		return nil, errors.New("messaging endpoint is required")
	}
	if gen == nil {
		return nil, errors.New("outline generator is required")
	}
	if session == nil {
		session = NewSession()
	}
	if cfg.CursorTimeout <= 0 {
		cfg.CursorTimeout = 2 * time.Second
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{ep: ep, gen: gen, session: session, cfg: cfg, logger: logger}, nil
}

func (c *Controller) infof(format string, args ...interface{}) {
	if !c.cfg.Verbose {
		return
	}
	c.logger.Printf("[INFO] [sidebar] "+format, args...)
}

// Session exposes the controller's state.
func (c *Controller) Session() *Session { return c.session }

// Start registers the message handlers and announces the sidebar to the host.
// The endpoint's Run loop must be running for replies to arrive.
func (c *Controller) Start(ctx context.Context) error {
	c.ep.Handle(messaging.ActionLiveTextUpdate, func(_ context.Context, msg messaging.Message) {
		c.observeText(msg)
	})
	c.ep.Handle(messaging.ActionToggleSidebar, func(_ context.Context, msg messaging.Message) {
		st := c.session.Snapshot()
		c.session.setVisible(!st.Visible)
		if msg.Tab != "" {
			c.session.setTab(Tab(msg.Tab))
		}
		c.changed()
	})
	c.ep.Handle(messaging.ActionSwitchTab, func(_ context.Context, msg messaging.Message) {
		if msg.Tab != "" {
			c.session.setTab(Tab(msg.Tab))
			c.changed()
		}
	})
	c.ep.Handle(messaging.ActionGenerateOutline, func(ctx context.Context, _ messaging.Message) {
		go func() {
			if err := c.GenerateAndApply(ctx); err != nil && !errors.Is(err, ErrStale) {
				c.logger.Printf("[WARN] [sidebar] %v", err)
			}
		}()
	})

	if err := c.ep.Send(ctx, messaging.Message{Action: messaging.ActionSidebarReady}); err != nil {
		return fmt.Errorf("announce sidebar: %w", err)
	}
	c.session.setReady()
	c.session.setVisible(true)
	c.changed()
	return nil
}

func (c *Controller) observeText(msg messaging.Message) {
	snap := metrics.Compute(msg.Data)
	features := observer.Features{WordCount: snap.WordCount, ReadingTime: fmt.Sprintf("%d min", snap.ReadingTimeMinutes)}
	if msg.Features != nil {
		features = *msg.Features
	}
	c.session.setText(msg.Data, features, snap, c.cfg.Now())
	c.changed()
}

func (c *Controller) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.session.Snapshot())
	}
}

// Stuck reports whether the writer appears stuck on the current text.
func (c *Controller) Stuck() bool {
	st := c.session.Snapshot()
	return metrics.IsStuck(st.Text, st.LastEdit, c.cfg.Now())
}

// cursor asks the host for its selection. A host that does not answer is
// treated as having none.
func (c *Controller) cursor(ctx context.Context) *hostview.CursorPosition {
	reply, err := c.ep.Request(ctx, messaging.Message{Action: messaging.ActionGetCursorPosition}, messaging.ActionCursorPosition, c.cfg.CursorTimeout)
	if err != nil {
		c.infof("no cursor position: %v", err)
		return nil
	}
	return reply.Position
}

// GenerateOutline outlines the latest text. When another request starts
// before this one finishes, this result is dropped and ErrStale returned, so
// an older outline never replaces a newer one.
func (c *Controller) GenerateOutline(ctx context.Context) (outline.Outline, error) {
	seq, text := c.session.beginGeneration()
	c.changed()

	o, err := c.gen.Generate(ctx, text, c.cursor(ctx))

	var kept bool
	if err != nil {
		kept = c.session.finishGeneration(seq, nil, err)
	} else {
		kept = c.session.finishGeneration(seq, &o, nil)
	}
	if !kept {
		c.infof("discarding outline for request %d", seq)
		return outline.Outline{}, ErrStale
	}
	c.changed()
	return o, err
}

// ApplyOutline asks the host to insert the current outline and waits for
// its outlineApplied answer.
func (c *Controller) ApplyOutline(ctx context.Context) error {
	st := c.session.Snapshot()
	if st.Outline == nil {
		return ErrNoOutline
	}
	raw, err := json.Marshal(st.Outline)
	if err != nil {
		return err
	}

	msg := messaging.Message{
		Action:         messaging.ActionApplyOutline,
		Outline:        raw,
		DocID:          c.cfg.DocID,
		CursorPosition: c.cursor(ctx),
	}
	reply, err := c.ep.Request(ctx, msg, messaging.ActionOutlineApplied, c.cfg.ApplyTimeout)
	if err != nil {
		c.session.setError(err.Error())
		c.changed()
		return err
	}
	if reply.Success == nil || !*reply.Success {
		err := fmt.Errorf("apply outline: %s", reply.Error)
		c.session.setError(reply.Error)
		c.changed()
		return err
	}
	c.infof("outline applied")
	return nil
}

// GenerateAndApply generates an outline for the latest text and inserts it.
func (c *Controller) GenerateAndApply(ctx context.Context) error {
	if _, err := c.GenerateOutline(ctx); err != nil {
		return err
	}
	return c.ApplyOutline(ctx)
}

// Close tells the host the sidebar is going away.
func (c *Controller) Close(ctx context.Context) error {
	c.session.setVisible(false)
	return c.ep.Send(ctx, messaging.Message{Action: messaging.ActionCloseSidebar})
}
