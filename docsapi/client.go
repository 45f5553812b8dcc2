// Package docsapi reads and edits host documents through the Docs REST API,
// authenticating every call with the caller's bearer token.
package docsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	docs "google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DocumentStartIndex is the first insertable index, just past the implicit
// start of the document body.
const DocumentStartIndex = 1

var (
	docIDPattern  = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)
	bareIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ErrNoDocumentID is returned when a URL does not name a document.
var ErrNoDocumentID = errors.New("no document id in url")

// DocumentID extracts the document id from an editor URL. A bare id is
// returned as is.
func DocumentID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if bareIDPattern.MatchString(rawURL) {
		return rawURL, nil
	}
	m := docIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrNoDocumentID, rawURL)
	}
	return m[1], nil
}

// StatusError is a non-2xx answer from the Docs API.
type StatusError struct {
	Code    int
	Message string
	Body    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("docs api returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("docs api returned %d", e.Code)
}

// HTTPStatus lets auth.IsUnauthorized see the status.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Client talks to the Docs API. Endpoint overrides the production base URL.
type Client struct {
	Endpoint string
	Base     http.RoundTripper
	Timeout  time.Duration
}

func (c *Client) service(ctx context.Context, token string) (*docs.Service, error) {
	base := c.Base
	if base == nil {
		base = http.DefaultTransport
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	return docs.NewService(ctx, opts...)
}

// ReadText returns the document body as plain text, concatenating the text
// runs of every paragraph, including those inside tables.
func (c *Client) ReadText(ctx context.Context, token, docID string) (string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return "", err
	}
	doc, err := svc.Documents.Get(docID).Context(ctx).Do()
	if err != nil {
		return "", normalize(err)
	}
	if doc.Body == nil {
		return "", nil
	}
	var b strings.Builder
	writeContent(&b, doc.Body.Content)
	return b.String(), nil
}

func writeContent(b *strings.Builder, content []*docs.StructuralElement) {
	for _, el := range content {
		switch {
		case el.Paragraph != nil:
			for _, pe := range el.Paragraph.Elements {
				if pe.TextRun != nil {
					b.WriteString(pe.TextRun.Content)
				}
			}
		case el.Table != nil:
			for _, row := range el.Table.TableRows {
				for _, cell := range row.TableCells {
					writeContent(b, cell.Content)
				}
			}
		}
	}
}

// InsertText applies a single insertText request at index.
func (c *Client) InsertText(ctx context.Context, token, docID string, index int64, text string) error {
	if index < DocumentStartIndex {
		index = DocumentStartIndex
	}
	svc, err := c.service(ctx, token)
	if err != nil {
		return err
	}
	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: index},
				Text:     text,
			},
		}},
	}
	if _, err := svc.Documents.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return normalize(err)
	}
	return nil
}

func normalize(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &StatusError{Code: gerr.Code, Message: gerr.Message, Body: gerr.Body}
	}
	return err
}
