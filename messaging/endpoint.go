package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Handler reacts to one incoming message.
type Handler func(ctx context.Context, msg Message)

// Endpoint owns the receive side of a Conn. Incoming messages go first to a
// pending Request waiting for that action, otherwise to the registered Handler.
type Endpoint struct {
	conn    Conn
	logger  *log.Logger
	verbose bool

	mu       sync.Mutex
	handlers map[Action]Handler
	waiters  map[Action][]chan Message
}

func NewEndpoint(conn Conn, logger *log.Logger, verbose bool) *Endpoint {
	if logger == nil {
		logger = log.Default()
	}
	return &Endpoint{
		conn:     conn,
		logger:   logger,
		verbose:  verbose,
		handlers: make(map[Action]Handler),
		waiters:  make(map[Action][]chan Message),
	}
}

func (e *Endpoint) infof(format string, args ...interface{}) {
	if !e.verbose {
		return
	}
	e.logger.Printf("[INFO] [messaging] "+format, args...)
}

// Handle registers h for action, replacing any previous handler.
func (e *Endpoint) Handle(action Action, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = h
}

// Send is fire-and-forget.
func (e *Endpoint) Send(ctx context.Context, msg Message) error {
	return e.conn.Send(ctx, msg)
}

// Request sends msg and waits for the first message whose action is reply.
// It fails with ErrNoReply when nothing arrives within timeout.
func (e *Endpoint) Request(ctx context.Context, msg Message, reply Action, timeout time.Duration) (Message, error) {
	ch := make(chan Message, 1)
	e.mu.Lock()
	e.waiters[reply] = append(e.waiters[reply], ch)
	e.mu.Unlock()
	defer e.dropWaiter(reply, ch)

	if err := e.conn.Send(ctx, msg); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-ch:
		return m, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("%w: %s after %s", ErrNoReply, reply, timeout)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (e *Endpoint) dropWaiter(action Action, ch chan Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.waiters[action]
	for i, w := range list {
		if w == ch {
			e.waiters[action] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(e.waiters[action]) == 0 {
		delete(e.waiters, action)
	}
}

// Run dispatches incoming messages in arrival order until ctx ends or the
// connection closes. Handlers run on the receive goroutine; a handler that
// issues a Request must do so from its own goroutine. Frames that fail to
// decode are logged and skipped.
func (e *Endpoint) Run(ctx context.Context) error {
	for {
		msg, err := e.conn.Receive(ctx)
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			e.logger.Printf("[WARN] [messaging] dropping frame: %v", err)
			continue
		}
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		e.dispatch(ctx, msg)
	}
}

func (e *Endpoint) dispatch(ctx context.Context, msg Message) {
	e.mu.Lock()
	if list := e.waiters[msg.Action]; len(list) > 0 {
		ch := list[0]
		e.waiters[msg.Action] = list[1:]
		e.mu.Unlock()
		ch <- msg
		return
	}
	h := e.handlers[msg.Action]
	e.mu.Unlock()

	if h == nil {
		e.infof("no handler for %q", msg.Action)
		return
	}
	h(ctx, msg)
}

// Close closes the underlying connection.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}
