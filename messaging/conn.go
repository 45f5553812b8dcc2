package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one end of a message channel.
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

const pipeBuffer = 16

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-memory ends. Messages are JSON encoded in
// transit so neither side can share memory with the other. Closing either
// end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: ba, out: ab, closed: closed, once: once},
		&pipeEnd{in: ab, out: ba, closed: closed, once: once}
}

func (p *pipeEnd) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) (Message, error) {
	select {
	case data := <-p.in:
		return decode(data)
	case <-p.closed:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// WSConn carries messages as JSON text frames over a websocket.
type WSConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Dial opens a websocket to url.
func Dial(ctx context.Context, url string) (*WSConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWSConn(ws), nil
}

func (c *WSConn) Send(ctx context.Context, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		return closedOr(err)
	}
	return nil
}

// Receive blocks until a frame arrives. Cancelling ctx does not interrupt a
// pending read; Close does.
func (c *WSConn) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Message{}, closedOr(err)
	}
	return decode(data)
}

func (c *WSConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func closedOr(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ErrClosed
	}
	return err
}
