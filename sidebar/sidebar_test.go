package sidebar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"outline_assistant/applier"
	"outline_assistant/hostview"
	"outline_assistant/messaging"
	"outline_assistant/observer"
	"outline_assistant/outline"
)

// gatedGenerator blocks each Generate call until its text is released.
type gatedGenerator struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started chan string
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{gates: make(map[string]chan struct{}), started: make(chan string, 8)}
}

func (g *gatedGenerator) gate(text string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[text]
	if !ok {
		ch = make(chan struct{})
		g.gates[text] = ch
	}
	return ch
}

func (g *gatedGenerator) Generate(ctx context.Context, text string, _ *hostview.CursorPosition) (outline.Outline, error) {
	gate := g.gate(text)
	g.started <- text
	select {
	case <-gate:
	case <-ctx.Done():
		return outline.Outline{}, ctx.Err()
	}
	return outline.Outline{Sections: []outline.Section{{Title: "About " + text, KeyPoints: []string{}}}}, nil
}

type fixedGenerator struct{}

func (fixedGenerator) Generate(_ context.Context, text string, cursor *hostview.CursorPosition) (outline.Outline, error) {
	if strings.TrimSpace(text) == "" {
		return outline.Outline{}, errors.New("empty text")
	}
	return outline.Outline{Sections: []outline.Section{
		{Title: "Opening", KeyPoints: []string{"Set the scene"}},
		{Title: "Closing", KeyPoints: []string{"Land the point"}},
	}}, nil
}

// silentPeer consumes messages on the host end without answering.
func silentPeer(ctx context.Context, conn messaging.Conn) {
	ep := messaging.NewEndpoint(conn, nil, false)
	go func() { _ = ep.Run(ctx) }()
}

func TestStaleOutlineIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sideConn, hostConn := messaging.Pipe()
	defer sideConn.Close()
	silentPeer(ctx, hostConn)

	ep := messaging.NewEndpoint(sideConn, nil, false)
	go func() { _ = ep.Run(ctx) }()

	gen := newGatedGenerator()
	c, err := NewController(ep, gen, nil, ControllerConfig{CursorTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	c.observeText(messaging.Message{Data: "first draft"})
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GenerateOutline(ctx)
		firstErr <- err
	}()
	require.Equal(t, "first draft", <-gen.started)

	c.observeText(messaging.Message{Data: "second draft"})
	secondDone := make(chan error, 1)
	go func() {
		_, err := c.GenerateOutline(ctx)
		secondDone <- err
	}()
	require.Equal(t, "second draft", <-gen.started)

	close(gen.gate("second draft"))
	require.NoError(t, <-secondDone)
	require.Equal(t, "About second draft", c.Session().Snapshot().Outline.Sections[0].Title)

	close(gen.gate("first draft"))
	require.ErrorIs(t, <-firstErr, ErrStale)

	st := c.Session().Snapshot()
	require.Equal(t, "About second draft", st.Outline.Sections[0].Title)
	require.False(t, st.Generating)
	require.Equal(t, TabOutline, st.ActiveTab)
}

func setEditorText(t *testing.T, a *hostview.Adapter, text string) {
	t.Helper()
	err := a.Document().Mutate(hostview.CharacterData, func(root *html.Node) error {
		var editor *html.Node
		var find func(n *html.Node)
		find = func(n *html.Node) {
			for _, at := range n.Attr {
				if at.Key == "class" && at.Val == "kix-appview-editor" {
					editor = n
				}
			}
			for c := n.FirstChild; c != nil && editor == nil; c = c.NextSibling {
				find(c)
			}
		}
		find(root)
		for editor.FirstChild != nil {
			editor.RemoveChild(editor.FirstChild)
		}
		editor.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		return nil
	})
	require.NoError(t, err)
}

type pair struct {
	controller *Controller
	host       *Host
	adapter    *hostview.Adapter
	states     chan State
}

func startPair(t *testing.T, page string, containerWait time.Duration) *pair {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	doc, err := hostview.ParseString(page)
	require.NoError(t, err)
	adapter, err := hostview.NewAdapter(doc, hostview.DefaultSelectors(), nil, false)
	require.NoError(t, err)

	sideConn, hostConn := messaging.Pipe()
	t.Cleanup(func() { _ = sideConn.Close() })
	sideEP := messaging.NewEndpoint(sideConn, nil, false)
	hostEP := messaging.NewEndpoint(hostConn, nil, false)

	app, err := applier.New(&applier.DOMStrategy{Adapter: adapter, ContainerWait: containerWait}, nil, false)
	require.NoError(t, err)
	host, err := NewHost(hostEP, HostConfig{
		Adapter: adapter,
		Watcher: &observer.MutationWatcher{Adapter: adapter, Debounce: 10 * time.Millisecond, BootstrapTimeout: time.Second},
		Applier: app,
	})
	require.NoError(t, err)

	states := make(chan State, 64)
	c, err := NewController(sideEP, fixedGenerator{}, nil, ControllerConfig{
		OnChange: func(s State) {
			select {
			case states <- s:
			default:
			}
		},
	})
	require.NoError(t, err)

	go func() { _ = hostEP.Run(ctx) }()
	go func() { _ = sideEP.Run(ctx) }()
	require.NoError(t, host.Start(ctx))
	t.Cleanup(host.Stop)
	require.NoError(t, c.Start(ctx))

	return &pair{controller: c, host: host, adapter: adapter, states: states}
}

func TestLiveTextReachesSidebar(t *testing.T) {
	p := startPair(t, `<body><div class="kix-appview-editor">Initial words here</div><div contenteditable="true"></div></body>`, time.Second)

	require.Eventually(t, func() bool {
		return p.controller.Session().Snapshot().Text == "Initial words here"
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, p.host.SidebarVisible, time.Second, 10*time.Millisecond)

	setEditorText(t, p.adapter, "The quick brown fox jumps.")
	require.Eventually(t, func() bool {
		st := p.controller.Session().Snapshot()
		return st.Text == "The quick brown fox jumps." && st.Features.WordCount == 5 && st.Metrics.WordCount == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGenerateAndApplyInsertsIntoHost(t *testing.T) {
	p := startPair(t, `<body><div class="kix-appview-editor">Some text to outline.</div><div contenteditable="true"><p>body</p></div></body>`, time.Second)

	require.Eventually(t, func() bool {
		return p.controller.Session().Snapshot().Text != ""
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.controller.GenerateAndApply(context.Background()))

	out, err := p.adapter.Document().Render()
	require.NoError(t, err)
	require.Contains(t, out, "Opening")
	require.Contains(t, out, "• Land the point")
	require.Empty(t, p.controller.Session().Snapshot().LastError)
}

func TestApplyFailureIsReported(t *testing.T) {
	p := startPair(t, `<body><div class="kix-appview-editor">Text without an editable area.</div></body>`, 30*time.Millisecond)

	require.Eventually(t, func() bool {
		return p.controller.Session().Snapshot().Text != ""
	}, 2*time.Second, 10*time.Millisecond)

	_, err := p.controller.GenerateOutline(context.Background())
	require.NoError(t, err)

	err = p.controller.ApplyOutline(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Editor not ready")
	require.Equal(t, "Editor not ready: The document did not finish loading", p.controller.Session().Snapshot().LastError)
}

func TestApplyWithoutOutline(t *testing.T) {
	p := startPair(t, `<body><div class="kix-appview-editor">x</div></body>`, time.Second)
	require.ErrorIs(t, p.controller.ApplyOutline(context.Background()), ErrNoOutline)
}

func TestStuckUsesSessionClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sideConn, hostConn := messaging.Pipe()
	defer sideConn.Close()
	silentPeer(ctx, hostConn)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c, err := NewController(messaging.NewEndpoint(sideConn, nil, false), fixedGenerator{}, nil, ControllerConfig{
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)

	c.observeText(messaging.Message{Data: "one two three four five six seven eight nine ten"})
	require.False(t, c.Stuck())

	now = now.Add(31 * time.Second)
	require.True(t, c.Stuck())
}
