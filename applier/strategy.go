package applier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"outline_assistant/auth"
	"outline_assistant/docsapi"
	"outline_assistant/hostview"
)

// DefaultContainerWait bounds how long DOMStrategy waits for the editor.
const DefaultContainerWait = 5 * time.Second

// DOMStrategy writes the outline straight into the live view.
type DOMStrategy struct {
	Adapter       *hostview.Adapter
	ContainerWait time.Duration
}

func (s *DOMStrategy) Name() string { return "dom" }

// Insert waits for an editable container, then inserts a block at the cursor
// anchor when it is still valid, or at the start of the container. Blocks are
// keyed by payload so a repeated insert of the same outline is refused.
func (s *DOMStrategy) Insert(ctx context.Context, payload string, target Target) error {
	wait := s.ContainerWait
	if wait <= 0 {
		wait = DefaultContainerWait
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	sel := s.Adapter.Selectors()
	if err := s.Adapter.WaitFor(wctx, sel.Editable, sel.Page); err != nil {
		return fmt.Errorf("%w: %w", hostview.ErrContainerMissing, err)
	}

	var anchor *hostview.Anchor
	if target.Cursor != nil {
		anchor = target.Cursor.Anchor
	}
	lines := strings.Split(strings.TrimRight(payload, "\n"), "\n")
	_, err := s.Adapter.InsertBlock(PayloadKey(payload), lines, anchor)
	return err
}

// PayloadKey is a stable identifier for a formatted payload.
func PayloadKey(payload string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(payload)).String()
}

// DocsStrategy inserts through the Docs API batch update endpoint.
type DocsStrategy struct {
	Client *docsapi.Client
	Tokens *auth.TokenManager
}

func (s *DocsStrategy) Name() string { return "docs-api" }

// Insert sends one insertText request. An explicit 401 or 403 refreshes the
// token and resends the identical request once; any other failure, including
// an inconclusive network error, is returned without retrying.
func (s *DocsStrategy) Insert(ctx context.Context, payload string, target Target) error {
	if target.DocumentID == "" {
		return errors.New("document id is required for api insertion")
	}
	index := target.Index
	if index <= 0 {
		index = docsapi.DocumentStartIndex
	}
	return auth.WithRefresh(ctx, s.Tokens, func(ctx context.Context, token string) error {
		return s.Client.InsertText(ctx, token, target.DocumentID, index, payload)
	})
}
