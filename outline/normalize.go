package outline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// maxSuggestedLength bounds a usable word-count hint; larger values are dropped.
const maxSuggestedLength = 1_000_000

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```$")

type rawSection struct {
	Title           string            `json:"title"`
	KeyPoints       []json.RawMessage `json:"key_points"`
	KeyPointsCamel  []json.RawMessage `json:"keyPoints"`
	Points          []json.RawMessage `json:"points"`
	SuggestedLength *float64          `json:"suggested_length"`
}

// Normalize turns any payload shape seen from generators or the sidebar into
// an Outline: {sections:[...]}, {outline:...}, {title, points}, a JSON array
// of sections or of strings (title first), a JSON string, or freeform text.
// Input that looks like JSON but does not parse is read as freeform text.
// Sections with blank titles are dropped; an empty result is a *MalformedError.
func Normalize(raw []byte) (Outline, error) {
	data := bytes.TrimSpace(raw)
	if m := codeFence.FindSubmatch(data); m != nil {
		data = bytes.TrimSpace(m[1])
	}
	if len(data) == 0 {
		return Outline{}, &MalformedError{Reason: "empty payload"}
	}

	var (
		o   Outline
		err error
	)
	first := data[0]
	if (first == '{' || first == '[' || first == '"') && !json.Valid(data) {
		// Freeform text that happens to open with a bracketed heading or a quote.
		first = 0
	}
	switch first {
	case '{':
		o, err = fromObject(data)
	case '[':
		o, err = fromArray(data)
	case '"':
		var s string
		if err = json.Unmarshal(data, &s); err != nil {
			return Outline{}, &MalformedError{Reason: err.Error()}
		}
		o = fromString(s)
	default:
		o = ParseFreeform(string(data))
	}
	if err != nil {
		return Outline{}, err
	}
	o = clean(o)
	if err := o.Validate(); err != nil {
		return Outline{}, err
	}
	return o, nil
}

// NormalizeValue normalizes an already decoded value.
func NormalizeValue(v any) (Outline, error) {
	if s, ok := v.(string); ok {
		return Normalize([]byte(s))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Outline{}, &MalformedError{Reason: err.Error()}
	}
	return Normalize(data)
}

func fromObject(data []byte) (Outline, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return Outline{}, &MalformedError{Reason: err.Error()}
	}

	if inner, ok := obj["outline"]; ok {
		return Normalize(inner)
	}

	var title string
	if t, ok := obj["title"]; ok {
		_ = json.Unmarshal(t, &title)
	}

	if rawSections, ok := obj["sections"]; ok {
		var sections []rawSection
		if err := json.Unmarshal(rawSections, &sections); err != nil {
			return Outline{}, &MalformedError{Reason: fmt.Sprintf("sections: %v", err)}
		}
		return Outline{Title: title, Sections: lo.Map(sections, func(r rawSection, _ int) Section { return r.section() })}, nil
	}

	if title != "" {
		var single rawSection
		if err := json.Unmarshal(data, &single); err != nil {
			return Outline{}, &MalformedError{Reason: err.Error()}
		}
		return Outline{Sections: []Section{single.section()}}, nil
	}

	return Outline{}, &MalformedError{Reason: "object has neither sections nor title"}
}

func fromArray(data []byte) (Outline, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Outline{}, &MalformedError{Reason: err.Error()}
	}
	if len(items) == 0 {
		return Outline{}, &MalformedError{Reason: "empty array"}
	}

	first := bytes.TrimSpace(items[0])
	if len(first) > 0 && first[0] == '{' {
		var sections []rawSection
		if err := json.Unmarshal(data, &sections); err != nil {
			return Outline{}, &MalformedError{Reason: err.Error()}
		}
		return Outline{Sections: lo.Map(sections, func(r rawSection, _ int) Section { return r.section() })}, nil
	}

	strs := lo.Map(items, func(m json.RawMessage, _ int) string { return rawString(m) })
	return Outline{Sections: []Section{{Title: strs[0], KeyPoints: strs[1:]}}}, nil
}

func fromString(s string) Outline {
	if strings.Contains(strings.TrimSpace(s), "\n") {
		return ParseFreeform(s)
	}
	return Outline{Sections: []Section{{Title: s}}}
}

func (r rawSection) section() Section {
	points := r.KeyPoints
	if len(points) == 0 {
		points = r.KeyPointsCamel
	}
	if len(points) == 0 {
		points = r.Points
	}
	s := Section{
		Title:     r.Title,
		KeyPoints: lo.Map(points, func(m json.RawMessage, _ int) string { return rawString(m) }),
	}
	if r.SuggestedLength != nil && *r.SuggestedLength >= 1 && *r.SuggestedLength <= maxSuggestedLength {
		n := int(math.Round(*r.SuggestedLength))
		s.SuggestedLength = &n
	}
	return s
}

// rawString renders a JSON scalar as text: strings unquoted, others verbatim.
func rawString(m json.RawMessage) string {
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(m))
}

func clean(o Outline) Outline {
	out := Outline{Title: strings.TrimSpace(o.Title)}
	for _, s := range o.Sections {
		title := cleanTitle(s.Title)
		if title == "" {
			continue
		}
		points := lo.FilterMap(s.KeyPoints, func(p string, _ int) (string, bool) {
			sub := strings.HasPrefix(p, SubPointPrefix)
			p = strings.TrimSpace(p)
			if p == "" || p == "null" {
				return "", false
			}
			if sub {
				p = SubPointPrefix + p
			}
			return p, true
		})
		if points == nil {
			points = []string{}
		}
		out.Sections = append(out.Sections, Section{Title: title, KeyPoints: points, SuggestedLength: s.SuggestedLength})
	}
	return out
}

func cleanTitle(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, ":")
	t = strings.TrimSpace(strings.Trim(t, "*_"))
	return strings.TrimSuffix(t, ":")
}
