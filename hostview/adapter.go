package hostview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrExtractionUnavailable means the text container is not on the page yet.
	ErrExtractionUnavailable = errors.New("document text container not present")
	// ErrContainerMissing means no editable container exists to insert into.
	ErrContainerMissing = errors.New("editable container not present")
	// ErrAlreadyInserted means an identical block is already in the container.
	ErrAlreadyInserted = errors.New("outline block already inserted")
)

// InsertedClass marks blocks written by the assistant.
const InsertedClass = "assistant-outline"

// Selectors are the host-specific lookups. They are the only brittle part of
// talking to the host page, so nothing outside this package spells them out.
type Selectors struct {
	TextRoot     string
	FallbackRoot string
	Editable     string
	Page         string
}

// DefaultSelectors targets the Google Docs editor markup.
func DefaultSelectors() Selectors {
	return Selectors{
		TextRoot:     ".kix-appview-editor",
		FallbackRoot: ".kix-appview",
		Editable:     `div[contenteditable="true"]`,
		Page:         ".kix-page",
	}
}

// Anchor is an opaque insertion point: a child-index path from the document
// root to a text node, plus a byte offset into it.
type Anchor struct {
	Path   []int `json:"path"`
	Offset int   `json:"offset"`
}

// CursorPosition is requested from the view on demand and never cached.
// Position carries the selected text when no anchor could be captured.
type CursorPosition struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Anchor   *Anchor `json:"anchor,omitempty"`
	Position string  `json:"position,omitempty"`
}

// Adapter answers every question the assistant asks about the host view.
type Adapter struct {
	doc     *Document
	sel     Selectors
	logger  *log.Logger
	verbose bool

	mu    sync.Mutex
	cache map[string]cascadia.Selector
}

// NewAdapter validates the selectors and binds them to doc.
func NewAdapter(doc *Document, sel Selectors, logger *log.Logger, verbose bool) (*Adapter, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &Adapter{doc: doc, sel: sel, logger: logger, verbose: verbose, cache: make(map[string]cascadia.Selector)}
	for _, s := range []string{sel.TextRoot, sel.FallbackRoot, sel.Editable, sel.Page} {
		if s == "" {
			continue
		}
		if _, err := a.compile(s); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Document returns the underlying view.
func (a *Adapter) Document() *Document { return a.doc }

// Selectors returns the configured lookups.
func (a *Adapter) Selectors() Selectors { return a.sel }

func (a *Adapter) infof(format string, args ...interface{}) {
	if !a.verbose {
		return
	}
	a.logger.Printf("[INFO] [hostview] "+format, args...)
}

func (a *Adapter) compile(selector string) (cascadia.Selector, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.cache[selector]; ok {
		return s, nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	a.cache[selector] = s
	return s, nil
}

func (a *Adapter) first(root *html.Node, selectors ...string) *html.Node {
	for _, selector := range selectors {
		if selector == "" {
			continue
		}
		s, err := a.compile(selector)
		if err != nil {
			continue
		}
		if n := s.MatchFirst(root); n != nil {
			return n
		}
	}
	return nil
}

// Has reports whether any of the selectors currently matches.
func (a *Adapter) Has(selectors ...string) bool {
	found := false
	a.doc.View(func(root *html.Node) {
		found = a.first(root, selectors...) != nil
	})
	return found
}

// HasTextRoot reports whether the text container is present.
func (a *Adapter) HasTextRoot() bool {
	return a.Has(a.sel.TextRoot, a.sel.FallbackRoot)
}

// ExtractText returns the visible text of the text container. When the
// container is absent it logs a warning and returns ErrExtractionUnavailable.
func (a *Adapter) ExtractText() (string, error) {
	var (
		text  string
		found bool
	)
	a.doc.View(func(root *html.Node) {
		n := a.first(root, a.sel.TextRoot, a.sel.FallbackRoot)
		if n == nil {
			return
		}
		found = true
		text = ExtractVisibleText(n)
	})
	if !found {
		a.logger.Printf("[WARN] [hostview] no %s container found", a.sel.TextRoot)
		return "", ErrExtractionUnavailable
	}
	return text, nil
}

// WaitFor blocks until one of the selectors matches or ctx ends.
func (a *Adapter) WaitFor(ctx context.Context, selectors ...string) error {
	batches, cancel := a.doc.Subscribe(1)
	defer cancel()

	for {
		if a.Has(selectors...) {
			return nil
		}
		a.infof("waiting for %s", strings.Join(selectors, ", "))
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", strings.Join(selectors, ", "), ctx.Err())
		case <-batches:
		}
	}
}

// CursorPosition returns the host selection, or nil when there is none.
func (a *Adapter) CursorPosition() *CursorPosition {
	a.doc.mu.RLock()
	defer a.doc.mu.RUnlock()
	c := a.doc.caret
	if c == nil {
		return nil
	}
	pos := &CursorPosition{X: c.X, Y: c.Y, Position: c.Selected}
	if _, ok := resolve(a.doc.root, c.Anchor); ok {
		anchor := Anchor{Path: append([]int(nil), c.Anchor.Path...), Offset: c.Anchor.Offset}
		pos.Anchor = &anchor
	}
	return pos
}

// AnchorOf computes the anchor for the first text node containing needle,
// at the byte offset where needle starts. It is how a host client turns a
// click into a caret.
func (a *Adapter) AnchorOf(needle string) (Anchor, bool) {
	var (
		out   Anchor
		found bool
	)
	a.doc.View(func(root *html.Node) {
		var walk func(n *html.Node, path []int) bool
		walk = func(n *html.Node, path []int) bool {
			if n.Type == html.TextNode {
				if i := strings.Index(n.Data, needle); i >= 0 {
					out = Anchor{Path: append([]int(nil), path...), Offset: i}
					return true
				}
				return false
			}
			idx := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if walk(c, append(path, idx)) {
					return true
				}
				idx++
			}
			return false
		}
		found = walk(root, nil)
	})
	return out, found
}

// resolve walks the anchor path and checks it still lands inside a text node.
func resolve(root *html.Node, an Anchor) (*html.Node, bool) {
	n := root
	for _, idx := range an.Path {
		c := n.FirstChild
		for i := 0; i < idx && c != nil; i++ {
			c = c.NextSibling
		}
		if c == nil {
			return nil, false
		}
		n = c
	}
	if n.Type != html.TextNode || an.Offset < 0 || an.Offset > len(n.Data) {
		return nil, false
	}
	return n, true
}

// InsertBlock writes lines as a block of <div> elements. With a valid anchor
// the block splits the anchored text node; otherwise it becomes the first
// child of the editable container (or the page). key identifies the payload:
// a block with the same key already in the document is not inserted twice.
// It reports whether the anchor was used.
func (a *Adapter) InsertBlock(key string, lines []string, anchor *Anchor) (bool, error) {
	usedAnchor := false
	err := a.doc.Mutate(ChildList, func(root *html.Node) error {
		container := a.first(root, a.sel.Editable, a.sel.Page)
		if container == nil {
			return ErrContainerMissing
		}
		if key != "" && a.first(root, fmt.Sprintf(`div.%s[data-outline-key=%q]`, InsertedClass, key)) != nil {
			return ErrAlreadyInserted
		}

		block := newBlock(key, lines)
		if anchor != nil {
			if target, ok := resolve(root, *anchor); ok && target.Parent != nil {
				splitAndInsert(target, anchor.Offset, block)
				usedAnchor = true
				return nil
			}
			a.infof("anchor %v no longer valid, inserting at container start", anchor.Path)
		}
		container.InsertBefore(block, container.FirstChild)
		return nil
	})
	return usedAnchor, err
}

func newBlock(key string, lines []string) *html.Node {
	block := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: InsertedClass},
			{Key: "data-outline-key", Val: key},
		},
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
		p.AppendChild(&html.Node{Type: html.TextNode, Data: line})
		block.AppendChild(p)
	}
	return block
}

func splitAndInsert(text *html.Node, offset int, block *html.Node) {
	parent := text.Parent
	tail := text.Data[offset:]
	text.Data = text.Data[:offset]
	next := text.NextSibling
	parent.InsertBefore(block, next)
	if tail != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: tail}, next)
	}
}
