// Package hostview models the live document view the assistant augments: an
// HTML tree that changes under the assistant's feet, plus the adapter every
// other package uses to look things up in it.
package hostview

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// MutationKind names what a Mutate call changed.
type MutationKind string

const (
	ChildList     MutationKind = "childList"
	CharacterData MutationKind = "characterData"
	Attributes    MutationKind = "attributes"
)

// Batch is delivered to subscribers after each Mutate call.
type Batch struct {
	Seq  uint64
	Kind MutationKind
}

// Document is a mutable HTML tree. All reads go through View and all writes
// through Mutate so the tree is never observed half-edited.
type Document struct {
	mu    sync.RWMutex
	root  *html.Node
	seq   uint64
	caret *Caret

	subMu  sync.Mutex
	subs   map[int]chan Batch
	nextID int
}

// Caret is the host's current selection, if any.
type Caret struct {
	Anchor   Anchor
	X, Y     float64
	Selected string
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	if root == nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	return &Document{root: root, subs: make(map[int]chan Batch)}
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// View runs fn with read access to the tree. fn must not retain nodes.
func (d *Document) View(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Mutate runs fn with write access to the tree and then notifies subscribers,
// unless fn returns an error.
func (d *Document) Mutate(kind MutationKind, fn func(root *html.Node) error) error {
	d.mu.Lock()
	if err := fn(d.root); err != nil {
		d.mu.Unlock()
		return err
	}
	d.seq++
	b := Batch{Seq: d.seq, Kind: kind}
	d.mu.Unlock()

	d.publish(b)
	return nil
}

// Seq returns the number of mutations applied so far.
func (d *Document) Seq() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.seq
}

// Subscribe returns a channel receiving mutation batches and a cancel func.
// Delivery never blocks the writer: when the buffer is full the batch is
// dropped, and the pending one already tells the reader to look again.
func (d *Document) Subscribe(buffer int) (<-chan Batch, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Batch, buffer)

	d.subMu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = ch
	d.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, id)
			d.subMu.Unlock()
		})
	}
}

func (d *Document) publish(b Batch) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

// SetCaret records the host selection. A nil caret clears it.
func (d *Document) SetCaret(c *Caret) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c == nil {
		d.caret = nil
		return
	}
	cp := *c
	cp.Anchor.Path = append([]int(nil), c.Anchor.Path...)
	d.caret = &cp
}

// Render serializes the current tree.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	var err error
	d.View(func(root *html.Node) {
		err = html.Render(&buf, root)
	})
	return buf.String(), err
}
