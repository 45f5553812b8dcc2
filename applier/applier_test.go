package applier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"outline_assistant/auth"
	"outline_assistant/docsapi"
	"outline_assistant/hostview"
	"outline_assistant/outline"
)

var sample = outline.Outline{Sections: []outline.Section{
	{Title: "Introduction", KeyPoints: []string{"Hook", "Thesis"}},
	{Title: "Conclusion", KeyPoints: []string{"Wrap up"}},
}}

func domApplier(t *testing.T, page string) (*Applier, *hostview.Adapter) {
	t.Helper()
	doc, err := hostview.ParseString(page)
	require.NoError(t, err)
	adapter, err := hostview.NewAdapter(doc, hostview.DefaultSelectors(), nil, false)
	require.NoError(t, err)
	a, err := New(&DOMStrategy{Adapter: adapter, ContainerWait: 200 * time.Millisecond}, nil, false)
	require.NoError(t, err)
	return a, adapter
}

func TestDOMApplyOnceAtContainerStart(t *testing.T) {
	a, adapter := domApplier(t, `<body><div contenteditable="true"><p>existing</p></div></body>`)

	res, err := a.Apply(context.Background(), sample, Target{})
	require.NoError(t, err)
	require.Equal(t, "dom", res.Strategy)
	require.False(t, res.AlreadyPresent)
	require.Equal(t, sample.Text(), res.Payload)

	res, err = a.Apply(context.Background(), sample, Target{})
	require.NoError(t, err)
	require.True(t, res.AlreadyPresent)

	out, err := adapter.Document().Render()
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, hostview.InsertedClass))
	require.Less(t, strings.Index(out, "Introduction"), strings.Index(out, "existing"))
	require.Contains(t, out, "• Hook")
}

func TestDOMApplyAtCursorAnchor(t *testing.T) {
	a, adapter := domApplier(t, `<body><div contenteditable="true"><p>before middle after</p></div></body>`)

	anchor, ok := adapter.AnchorOf("middle")
	require.True(t, ok)

	_, err := a.Apply(context.Background(), sample, Target{Cursor: &hostview.CursorPosition{Anchor: &anchor}})
	require.NoError(t, err)

	out, err := adapter.Document().Render()
	require.NoError(t, err)
	require.Less(t, strings.Index(out, "before"), strings.Index(out, "Introduction"))
	require.Less(t, strings.Index(out, "Wrap up"), strings.Index(out, "middle after"))
}

func TestDOMApplyWaitsForContainer(t *testing.T) {
	a, adapter := domApplier(t, `<body></body>`)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = adapter.Document().Mutate(hostview.ChildList, func(root *html.Node) error {
			body := root.FirstChild.LastChild
			body.AppendChild(&html.Node{Type: html.ElementNode, Data: "div", Attr: []html.Attribute{{Key: "class", Val: "kix-page"}}})
			return nil
		})
	}()

	_, err := a.Apply(context.Background(), sample, Target{})
	require.NoError(t, err)
}

func TestDOMApplyContainerNeverAppears(t *testing.T) {
	a, _ := domApplier(t, `<body></body>`)

	_, err := a.Apply(context.Background(), sample, Target{})
	var insErr *InsertionError
	require.ErrorAs(t, err, &insErr)
	require.ErrorIs(t, err, hostview.ErrContainerMissing)
	require.Equal(t, "Editor not ready: The document did not finish loading", insErr.Message)
	require.Equal(t, "Introduction\n• Hook\n• Thesis\n\nConclusion...", insErr.Payload)
	require.Empty(t, insErr.Body)
}

func TestApplyRejectsEmptyOutline(t *testing.T) {
	a, _ := domApplier(t, `<body><div contenteditable="true"></div></body>`)
	_, err := a.Apply(context.Background(), outline.Outline{}, Target{})
	var malformed *outline.MalformedError
	require.ErrorAs(t, err, &malformed)
}

// docsServer accepts batch updates only for the allowed token and answers
// failStatus otherwise.
type docsServer struct {
	mu         sync.Mutex
	allow      string
	failStatus int
	bodies     [][]byte
}

func (d *docsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	d.mu.Lock()
	d.bodies = append(d.bodies, body)
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("Authorization") != "Bearer "+d.allow {
		w.WriteHeader(d.failStatus)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"rejected"}}`, d.failStatus)
		return
	}
	_, _ = w.Write([]byte(`{"documentId":"doc1"}`))
}

type queueIdentity struct {
	mu     sync.Mutex
	issue  []string
	cached string
}

func (q *queueIdentity) GetAuthToken(_ context.Context, interactive bool) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cached != "" {
		return q.cached, nil
	}
	if len(q.issue) == 0 {
		return "", auth.ErrNoToken
	}
	q.cached, q.issue = q.issue[0], q.issue[1:]
	return q.cached, nil
}

func (q *queueIdentity) RemoveCachedAuthToken(_ context.Context, token string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cached == token {
		q.cached = ""
	}
	return nil
}

func docsApplier(t *testing.T, d *docsServer) *Applier {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)

	tm, err := auth.NewTokenManager(&queueIdentity{issue: []string{"t1", "t2", "t3"}}, "", nil, nil, false)
	require.NoError(t, err)
	a, err := New(&DocsStrategy{Client: &docsapi.Client{Endpoint: srv.URL + "/"}, Tokens: tm}, nil, false)
	require.NoError(t, err)
	return a
}

func TestDocsApplyRetriesSamePayloadAfter401(t *testing.T) {
	d := &docsServer{allow: "t2", failStatus: http.StatusUnauthorized}
	a := docsApplier(t, d)

	res, err := a.Apply(context.Background(), sample, Target{DocumentID: "doc1"})
	require.NoError(t, err)
	require.Equal(t, "docs-api", res.Strategy)

	require.Len(t, d.bodies, 2)
	require.True(t, bytes.Equal(d.bodies[0], d.bodies[1]))
	require.Contains(t, string(d.bodies[0]), `"index":1`)
}

func TestDocsApplyGivesUpAfterSecondRejection(t *testing.T) {
	d := &docsServer{allow: "never", failStatus: http.StatusForbidden}
	a := docsApplier(t, d)

	_, err := a.Apply(context.Background(), sample, Target{DocumentID: "doc1"})
	var insErr *InsertionError
	require.ErrorAs(t, err, &insErr)
	require.Equal(t, http.StatusForbidden, insErr.Status)
	require.Equal(t, "Permission denied: You need edit access to this document", insErr.Message)
	require.Contains(t, insErr.Body, `"message":"rejected"`)
	require.Contains(t, insErr.Error(), "(403)")
	require.Contains(t, insErr.Error(), `"code":403`)
	require.Len(t, d.bodies, 2)
}

func TestDocsApplyDoesNotRetryServerErrors(t *testing.T) {
	d := &docsServer{allow: "never", failStatus: http.StatusInternalServerError}
	a := docsApplier(t, d)

	_, err := a.Apply(context.Background(), sample, Target{DocumentID: "doc1"})
	var insErr *InsertionError
	require.ErrorAs(t, err, &insErr)
	require.Equal(t, http.StatusInternalServerError, insErr.Status)
	require.Contains(t, insErr.Body, `"code":500`)
	require.Len(t, d.bodies, 1)
}

func TestFriendlyMessage(t *testing.T) {
	cases := map[string]error{
		"Authentication error: Please try again or sign in again":         &docsapi.StatusError{Code: 401},
		"Document not found: The document may have been deleted or moved": &docsapi.StatusError{Code: 404},
		"API rate limit exceeded: Please try again in a moment":           errors.New("googleapi: Error 400: Rate Limit Exceeded"),
		"Not signed in: Sign in to edit this document":                    &auth.AuthError{Op: "get token", Err: auth.ErrNoToken},
		"something else":                                                  errors.New("something else"),
	}
	for want, err := range cases {
		require.Equal(t, want, FriendlyMessage(err))
	}
	require.Empty(t, FriendlyMessage(nil))
}
