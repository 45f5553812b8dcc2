package metrics

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// IsStuck reports whether the writer looks stuck: the trailing StuckWindow
// words hold fewer than StuckMinDistinct distinct values, or more than
// StuckIdle passed since lastEdit. A zero lastEdit means no edit was recorded.
func IsStuck(text string, lastEdit, now time.Time) bool {
	words := strings.Fields(text)
	if len(words) > StuckWindow {
		words = words[len(words)-StuckWindow:]
	}
	if len(lo.Uniq(words)) < StuckMinDistinct {
		return true
	}
	return !lastEdit.IsZero() && now.Sub(lastEdit) > StuckIdle
}
