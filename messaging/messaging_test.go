package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"outline_assistant/hostview"
	"outline_assistant/observer"
)

func TestPipeIsolatesEnds(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	pos := &hostview.CursorPosition{X: 1, Y: 2}
	require.NoError(t, a.Send(context.Background(), Message{Action: ActionCursorPosition, Position: pos}))
	pos.X = 99

	got, err := b.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, ActionCursorPosition, got.Action)
	require.Equal(t, 1.0, got.Position.X)

	require.NoError(t, b.Close())
	_, err = a.Receive(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, a.Send(context.Background(), Message{Action: ActionSidebarReady}), ErrClosed)
}

func TestMessageWireShape(t *testing.T) {
	msg := Message{
		Action:   ActionLiveTextUpdate,
		Data:     "hello world",
		Features: &observer.Features{WordCount: 2, ReadingTime: "1 min"},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.JSONEq(t, `{"action":"liveTextUpdate","data":"hello world","features":{"wordCount":2,"readingTime":"1 min"}}`, string(data))

	var applied Message
	require.NoError(t, json.Unmarshal([]byte(`{"action":"outlineApplied","success":false,"error":"nope"}`), &applied))
	require.NotNil(t, applied.Success)
	require.False(t, *applied.Success)
}

func TestRequestCorrelatesByAction(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	side := NewEndpoint(a, nil, false)
	host := NewEndpoint(b, nil, false)

	host.Handle(ActionGetCursorPosition, func(ctx context.Context, _ Message) {
		_ = host.Send(ctx, Message{Action: ActionLiveTextUpdate, Data: "unrelated"})
		_ = host.Send(ctx, Message{Action: ActionCursorPosition, Position: &hostview.CursorPosition{X: 7}})
	})
	texts := make(chan string, 1)
	side.Handle(ActionLiveTextUpdate, func(_ context.Context, m Message) { texts <- m.Data })

	go func() { _ = side.Run(ctx) }()
	go func() { _ = host.Run(ctx) }()

	reply, err := side.Request(ctx, Message{Action: ActionGetCursorPosition}, ActionCursorPosition, time.Second)
	require.NoError(t, err)
	require.Equal(t, 7.0, reply.Position.X)
	require.Equal(t, "unrelated", <-texts)
}

func TestRequestTimesOut(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	side := NewEndpoint(a, nil, false)
	silent := NewEndpoint(b, nil, false)
	go func() { _ = side.Run(ctx) }()
	go func() { _ = silent.Run(ctx) }()

	start := time.Now()
	_, err := side.Request(ctx, Message{Action: ActionGetCursorPosition}, ActionCursorPosition, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrNoReply)
	require.Less(t, time.Since(start), time.Second)
}

func TestWSConnRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConn(ws)
		defer conn.Close()
		msg, err := conn.Receive(r.Context())
		if err != nil {
			return
		}
		_ = conn.Send(r.Context(), Message{Action: ActionCursorPosition, Position: &hostview.CursorPosition{Position: msg.Data}})
	}))
	defer srv.Close()

	conn, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(context.Background(), Message{Action: ActionGetCursorPosition, Data: "echo"}))
	got, err := conn.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, ActionCursorPosition, got.Action)
	require.Equal(t, "echo", got.Position.Position)
}

func TestRunSkipsUndecodableFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := Pipe()
	defer a.Close()
	ep := NewEndpoint(b, nil, false)
	got := make(chan Message, 1)
	ep.Handle(ActionLiveTextUpdate, func(_ context.Context, msg Message) { got <- msg })

	runErr := make(chan error, 1)
	go func() { runErr <- ep.Run(ctx) }()

	raw := a.(*pipeEnd).out
	raw <- []byte(`{"action":"liveTextUpdate","data":5}`)
	raw <- []byte(`not json`)
	require.NoError(t, a.Send(ctx, Message{Action: ActionLiveTextUpdate, Data: "still here"}))

	select {
	case msg := <-got:
		require.Equal(t, "still here", msg.Data)
	case err := <-runErr:
		t.Fatalf("Run stopped: %v", err)
	case <-time.After(time.Second):
		t.Fatal("valid message was not dispatched")
	}

	require.NoError(t, a.Close())
	require.NoError(t, <-runErr)
}

func TestWSConnReportsDecodeErrors(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"liveTextUpdate","data":5}`))
		_ = ws.WriteJSON(Message{Action: ActionLiveTextUpdate, Data: "ok"})
		_, _, _ = ws.ReadMessage()
	}))
	defer srv.Close()

	conn, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Receive(context.Background())
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	var typeErr *json.UnmarshalTypeError
	require.ErrorAs(t, err, &typeErr)

	msg, err := conn.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", msg.Data)
}
