package outline

import (
	"regexp"
	"strconv"
	"strings"
)

type markerKind int

const (
	kindPlain markerKind = iota
	kindHeading
	kindBold
	kindUpperRoman
	kindLowerRoman
	kindLetter
	kindNumber
	kindBullet
)

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	boldRe       = regexp.MustCompile(`^(?:\*\*(.+?)\*\*|__(.+?)__|\[(.+)\]):?$`)
	enumeratedRe = regexp.MustCompile(`^([A-Za-z]+|\d+)[.)]\s+(.+)$`)
	bulletRe     = regexp.MustCompile(`^[-*•·◦‣▪–+]\s+(.+)$`)
	romanRe      = regexp.MustCompile(`^(?i)M{0,3}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)
	lengthRe     = regexp.MustCompile(`^\*?Suggested length:\s*~?(\d+)\s*words\*?$`)
)

type outlineLine struct {
	kind   markerKind
	text   string
	indent int
	level  int // heading depth, for kindHeading only
}

// ParseFreeform reads marker-based outline text: markdown headings, bold or
// bracketed titles, Roman numerals, letters, numbers and bullets. Section
// boundaries come from the strongest marker kind present; nesting below a
// section comes from marker type and indentation.
func ParseFreeform(text string) Outline {
	lines := classify(text)
	if len(lines) == 0 {
		return Outline{}
	}

	var o Outline
	isSection := sectionRule(lines)

	if first := lines[0]; first.kind == kindHeading && first.level == 1 {
		for _, l := range lines[1:] {
			if l.kind == kindHeading && l.level > 1 {
				o.Title = first.text
				lines = lines[1:]
				break
			}
		}
	}

	var (
		cur        *Section
		baseIndent = -1
		sawLetter  bool
	)
	flush := func() {
		if cur != nil {
			o.Sections = append(o.Sections, *cur)
		}
	}
	for _, l := range lines {
		if isSection(l) {
			flush()
			cur = &Section{Title: l.text, KeyPoints: []string{}}
			baseIndent, sawLetter = -1, false
			continue
		}
		if cur == nil {
			continue
		}
		if m := lengthRe.FindStringSubmatch(l.text); m != nil && l.kind == kindPlain {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= maxSuggestedLength {
				cur.SuggestedLength = &n
			}
			continue
		}
		if baseIndent < 0 {
			baseIndent = l.indent
		}

		nested := false
		switch l.kind {
		case kindLowerRoman:
			nested = true
		case kindLetter:
			sawLetter = true
		case kindNumber:
			nested = sawLetter || l.indent > baseIndent
		default:
			nested = l.indent > baseIndent
		}
		if nested && len(cur.KeyPoints) > 0 {
			cur.KeyPoints = append(cur.KeyPoints, SubPointPrefix+l.text)
		} else {
			cur.KeyPoints = append(cur.KeyPoints, l.text)
		}
	}
	flush()
	return o
}

// sectionRule picks which lines open a section. Headings, bold titles and
// upper-case Roman numerals win; otherwise the shallowest numbered lines,
// then the shallowest plain lines, then the shallowest bullets.
func sectionRule(lines []outlineLine) func(outlineLine) bool {
	strong := func(l outlineLine) bool {
		return l.kind == kindHeading || l.kind == kindBold || l.kind == kindUpperRoman
	}
	for _, l := range lines {
		if strong(l) {
			return strong
		}
	}
	for _, kind := range []markerKind{kindNumber, kindPlain, kindBullet} {
		minIndent := -1
		for _, l := range lines {
			if l.kind == kind && (minIndent < 0 || l.indent < minIndent) {
				minIndent = l.indent
			}
		}
		if minIndent >= 0 {
			return func(l outlineLine) bool { return l.kind == kind && l.indent == minIndent }
		}
	}
	return func(outlineLine) bool { return false }
}

func classify(text string) []outlineLine {
	var (
		out                  []outlineLine
		lastUpper, lastLower rune
	)
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		indent := indentOf(raw)
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		l := outlineLine{kind: kindPlain, text: s, indent: indent}

		if m := headingRe.FindStringSubmatch(s); m != nil {
			l.kind, l.level, l.text = kindHeading, len(m[1]), stripEnumeration(m[2])
			lastUpper, lastLower = 0, 0
		} else if m := boldRe.FindStringSubmatch(s); m != nil {
			l.kind, l.text = kindBold, stripEnumeration(firstNonEmpty(m[1:]...))
			lastUpper, lastLower = 0, 0
		} else if m := enumeratedRe.FindStringSubmatch(s); m != nil {
			label, rest := m[1], m[2]
			l.text = rest
			switch {
			case label[0] >= '0' && label[0] <= '9':
				l.kind = kindNumber
			case len(label) == 1 && continuesSequence(label, lastUpper, lastLower):
				l.kind = kindLetter
			case romanRe.MatchString(label) && singleCase(label):
				if label[0] >= 'a' && label[0] <= 'z' {
					l.kind = kindLowerRoman
				} else {
					l.kind = kindUpperRoman
					lastUpper, lastLower = 0, 0
				}
			case len(label) == 1:
				l.kind = kindLetter
			default:
				l.kind, l.text = kindPlain, s
			}
			if l.kind == kindLetter {
				r := rune(label[0])
				if r >= 'a' {
					lastLower = r
				} else {
					lastUpper = r
				}
			}
		} else if m := bulletRe.FindStringSubmatch(s); m != nil {
			l.kind, l.text = kindBullet, m[1]
		}

		l.text = strings.TrimSpace(l.text)
		if l.kind != kindPlain && l.kind != kindBullet {
			l.text = cleanTitle(l.text)
		}
		if l.text == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// continuesSequence reports whether a single-letter label follows the last
// letter seen at the same case, which disambiguates C. or i. from numerals.
func continuesSequence(label string, lastUpper, lastLower rune) bool {
	r := rune(label[0])
	if r >= 'a' {
		return lastLower != 0 && r == lastLower+1
	}
	return lastUpper != 0 && r == lastUpper+1
}

func singleCase(s string) bool {
	return s == strings.ToUpper(s) || s == strings.ToLower(s)
}

func stripEnumeration(s string) string {
	if m := enumeratedRe.FindStringSubmatch(s); m != nil {
		return m[2]
	}
	return s
}

func indentOf(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
