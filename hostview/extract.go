package hostview

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractVisibleText returns the rendered text under root: text nodes joined
// by single spaces with whitespace collapsed. Text inside hidden subtrees
// (display:none, opacity:0, the hidden attribute, or visibility:hidden on the
// nearest ancestor that sets visibility) is skipped.
func ExtractVisibleText(root *html.Node) string {
	if root == nil {
		return ""
	}
	var parts []string
	var walk func(n *html.Node, visible bool)
	walk = func(n *html.Node, visible bool) {
		switch n.Type {
		case html.TextNode:
			if visible && strings.TrimSpace(n.Data) != "" {
				parts = append(parts, n.Data)
			}
			return
		case html.ElementNode:
			if skippedElement(n) {
				return
			}
			st := parseStyle(n)
			if st.removed() || hasAttr(n, "hidden") {
				return
			}
			if st.visibility != "" {
				visible = st.visibility != "hidden" && st.visibility != "collapse"
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, visible)
		}
	}
	walk(root, true)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func skippedElement(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return true
	}
	return false
}

type inlineStyle struct {
	display    string
	visibility string
	opacity    string
}

// removed reports whether the element and everything under it is not rendered.
func (s inlineStyle) removed() bool {
	if s.display == "none" {
		return true
	}
	if s.opacity != "" {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(s.opacity, "%"), 64); err == nil && v == 0 {
			return true
		}
	}
	return false
}

func parseStyle(n *html.Node) inlineStyle {
	var st inlineStyle
	raw, ok := attr(n, "style")
	if !ok {
		return st
	}
	for _, decl := range strings.Split(raw, ";") {
		prop, val, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch strings.ToLower(strings.TrimSpace(prop)) {
		case "display":
			st.display = val
		case "visibility":
			st.visibility = val
		case "opacity":
			st.opacity = val
		}
	}
	return st
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}
