package webdriver

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Node is one view from an Android hierarchy dump.
type Node struct {
	Class       string
	ResourceID  string
	Text        string
	ContentDesc string
	Bounds      string
	Clickable   bool
	Enabled     bool
	Displayed   bool
	Depth       int
}

// ElementsFromSource parses a UiAutomator hierarchy dump, as returned by
// Source on an Android session, into its views in document order.
func ElementsFromSource(src string) ([]Node, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(src); err != nil {
		return nil, fmt.Errorf("parse view hierarchy: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse view hierarchy: empty document")
	}
	var out []Node
	var walk func(el *etree.Element, depth int)
	walk = func(el *etree.Element, depth int) {
		for _, c := range el.ChildElements() {
			attr := func(k string) string { return c.SelectAttrValue(k, "") }
			class := attr("class")
			if class == "" {
				class = c.Tag
			}
			out = append(out, Node{
				Class:       class,
				ResourceID:  attr("resource-id"),
				Text:        attr("text"),
				ContentDesc: attr("content-desc"),
				Bounds:      attr("bounds"),
				Clickable:   attr("clickable") == "true",
				Enabled:     attr("enabled") != "false",
				Displayed:   attr("displayed") != "false",
				Depth:       depth,
			})
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return out, nil
}

// Summarize renders the views that carry an id, a text or a description, one
// per line and indented by depth. Failure reports attach it next to the raw
// dump.
func Summarize(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		if n.ResourceID == "" && n.Text == "" && n.ContentDesc == "" {
			continue
		}
		b.WriteString(strings.Repeat("  ", n.Depth))
		b.WriteString(shortClass(n.Class))
		if n.ResourceID != "" {
			b.WriteString(" #" + n.ResourceID)
		}
		if n.Text != "" {
			fmt.Fprintf(&b, " %q", n.Text)
		}
		if n.ContentDesc != "" {
			fmt.Fprintf(&b, " desc=%q", n.ContentDesc)
		}
		if n.Clickable {
			b.WriteString(" [clickable]")
		}
		if !n.Enabled {
			b.WriteString(" [disabled]")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func shortClass(c string) string {
	if i := strings.LastIndexByte(c, '.'); i >= 0 {
		return c[i+1:]
	}
	return c
}
