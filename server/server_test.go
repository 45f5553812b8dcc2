package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"outline_assistant/generator"
	"outline_assistant/hostview"
	"outline_assistant/messaging"
	"outline_assistant/outline"
)

type fakeGenerator struct {
	mu     sync.Mutex
	texts  []string
	cursor *hostview.CursorPosition
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, text string, cursor *hostview.CursorPosition) (outline.Outline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.cursor = cursor
	if f.err != nil {
		return outline.Outline{}, f.err
	}
	return outline.Outline{Title: "Document Outline", Sections: []outline.Section{
		{Title: "Introduction", KeyPoints: []string{"hook"}},
	}}, nil
}

func (f *fakeGenerator) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeGenerator) lastCursor() *hostview.CursorPosition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

func (f *fakeGenerator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newTestServer(t *testing.T, gen *fakeGenerator, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(gen, opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealthAndSecret(t *testing.T) {
	_, ts := newTestServer(t, &fakeGenerator{}, Options{APIKey: "sk-relay"})

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/secret")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "sk-relay", body["key"])
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSecretMissing(t *testing.T) {
	_, ts := newTestServer(t, &fakeGenerator{}, Options{})

	resp, err := http.Get(ts.URL + "/api/secret")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "API key not found", body["error"])
}

func TestSecretFeedsRelayKeySource(t *testing.T) {
	_, ts := newTestServer(t, &fakeGenerator{}, Options{APIKey: "sk-relay"})

	key, err := (&generator.RelayKeySource{URL: ts.URL + "/api/secret"}).Key(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-relay", key)
}

func TestGenerateOutline(t *testing.T) {
	gen := &fakeGenerator{}
	_, ts := newTestServer(t, gen, Options{})

	resp, body := postJSON(t, ts.URL+"/api/generate-outline", `{"text":"Dogs are loyal. Cats are independent.","cursor_position":{"position":"Cats"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	o := body["outline"].(map[string]any)
	require.Equal(t, "Document Outline", o["title"])
	stats := body["statistics"].(map[string]any)
	require.EqualValues(t, 6, stats["wordCount"])
	require.EqualValues(t, 2, stats["sentenceCount"])

	require.Equal(t, []string{"Dogs are loyal. Cats are independent."}, gen.calls())
	require.Equal(t, "Cats", gen.lastCursor().Position)
}

func TestGenerateOutlineRejects(t *testing.T) {
	gen := &fakeGenerator{}
	_, ts := newTestServer(t, gen, Options{})

	resp, body := postJSON(t, ts.URL+"/api/generate-outline", `{"text":"   "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "No text provided", body["error"])

	resp, body = postJSON(t, ts.URL+"/api/generate-outline", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Request must be JSON", body["error"])

	require.Empty(t, gen.calls())
}

func TestGenerateOutlineUpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{err: &generator.GenerationError{Status: 500, Message: "upstream exploded"}}
	_, ts := newTestServer(t, gen, Options{})

	resp, body := postJSON(t, ts.URL+"/api/generate-outline", `{"text":"some words"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, body["error"], "upstream exploded")

	gen.setErr(errors.New("dial tcp: connection refused"))
	resp, _ = postJSON(t, ts.URL+"/api/generate-outline", `{"text":"some words"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAnalyze(t *testing.T) {
	_, ts := newTestServer(t, &fakeGenerator{}, Options{})

	resp, body := postJSON(t, ts.URL+"/api/analyze", `{"text":"One two three.\n\nFour five."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 5, body["wordCount"])
	require.EqualValues(t, 2, body["paragraphCount"])
}

func TestUpload(t *testing.T) {
	_, ts := newTestServer(t, &fakeGenerator{}, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "essay.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("A short sample. It has two sentences."))
	fw, err = mw.CreateFormFile("files", "image.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte{0x89, 0x50})
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body uploadResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	require.Equal(t, "essay.txt", body.Results[0].Filename)
	require.Equal(t, 7, body.Results[0].Statistics.WordCount)
}

func TestPreflight(t *testing.T) {
	_, ts := newTestServer(t, &fakeGenerator{}, Options{AllowOrigin: "chrome-extension://abc"})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/generate-outline", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "chrome-extension://abc", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

// TestWebsocketSidebar plays the host page against /ws: the server acts as the
// sidebar, generates on request and asks the host to apply the result.
func TestWebsocketSidebar(t *testing.T) {
	gen := &fakeGenerator{}
	srv, ts := newTestServer(t, gen, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host, err := messaging.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?docId=doc-1")
	require.NoError(t, err)

	msg, err := host.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, messaging.ActionSidebarReady, msg.Action)
	require.Eventually(t, func() bool { return srv.Sessions() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, host.Send(ctx, messaging.Message{Action: messaging.ActionLiveTextUpdate, Data: "Brain dump about gardening."}))
	require.NoError(t, host.Send(ctx, messaging.Message{Action: messaging.ActionGenerateOutline}))

	var apply messaging.Message
	for apply.Action == "" {
		msg, err := host.Receive(ctx)
		require.NoError(t, err)
		switch msg.Action {
		case messaging.ActionGetCursorPosition:
			require.NoError(t, host.Send(ctx, messaging.Message{
				Action:   messaging.ActionCursorPosition,
				Position: &hostview.CursorPosition{Position: "gardening"},
			}))
		case messaging.ActionApplyOutline:
			apply = msg
		}
	}
	require.Equal(t, "doc-1", apply.DocID)
	o, err := outline.Normalize(apply.Outline)
	require.NoError(t, err)
	require.Equal(t, "Introduction", o.Sections[0].Title)
	require.Equal(t, []string{"Brain dump about gardening."}, gen.calls())

	require.NoError(t, host.Send(ctx, messaging.Message{Action: messaging.ActionOutlineApplied, Success: messaging.Bool(true)}))
	require.NoError(t, host.Close())
	require.Eventually(t, func() bool { return srv.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}
