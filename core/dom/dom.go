// Copyright 2024 - 2026, Exlord and the amphtml-go contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package dom adapts the host-provided window, document and element objects
into small explicit types.

Nothing here implements the DOM; the adapters only expose the handful of
reads the rest of the module needs (origin comparison, attribute lookup)
so that no package reaches for ambient global state.
*/
package dom

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var errNoDocumentElement = errors.New("parsed document has no documentElement")

// Window is one browsing context: an origin plus the document it hosts.
//
// A Window may exist without a document (e.g. before the embedded document is
// attached); callers must handle a nil Document.
type Window struct {
	origin string
	doc    *Document
}

// NewWindow creates a window for the given origin. doc may be nil.
func NewWindow(origin string, doc *Document) *Window {
	return &Window{origin: origin, doc: doc}
}

// Origin returns the window origin, e.g. "https://example.com".
func (w *Window) Origin() string {
	return w.origin
}

// Document returns the document attached to this window, or nil.
func (w *Window) Document() *Document {
	if w == nil {
		return nil
	}

	return w.doc
}

// Document wraps a parsed HTML tree.
type Document struct {
	root *html.Node // the <html> element
}

// ParseDocument parses HTML from r and returns a Document.
//
// Returns an error if the markup yields no documentElement.
func ParseDocument(r io.Reader) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	sel := gq.Find("html")
	if len(sel.Nodes) == 0 {
		return nil, errNoDocumentElement
	}

	return &Document{root: sel.Nodes[0]}, nil
}

// Element returns the documentElement.
func (d *Document) Element() *Element {
	if d == nil || d.root == nil {
		return nil
	}

	return &Element{node: d.root}
}

// QuerySelector returns the first element matching a CSS selector, or nil.
func (d *Document) QuerySelector(selector string) *Element {
	if d == nil || d.root == nil {
		return nil
	}

	sel := goquery.NewDocumentFromNode(d.root).Find(selector)
	if len(sel.Nodes) == 0 {
		return nil
	}

	return &Element{node: sel.Nodes[0]}
}

// Element wraps a single HTML element node.
type Element struct {
	node *html.Node
}

// NewElement wraps an html.Node. Intended for tests and adapters that
// already hold a parsed node.
func NewElement(node *html.Node) *Element {
	return &Element{node: node}
}

// TagName returns the lower-case tag name.
func (e *Element) TagName() string {
	return strings.ToLower(e.node.Data)
}

// GetAttribute returns the attribute value and whether the attribute is
// present at all. The two are distinct: an empty present attribute reports
// ("", true), an absent one ("", false).
func (e *Element) GetAttribute(name string) (string, bool) {
	if e == nil || e.node == nil {
		return "", false
	}

	for _, attr := range e.node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val, true
		}
	}

	return "", false
}

// HasAttribute reports whether the attribute is present.
func (e *Element) HasAttribute(name string) bool {
	_, ok := e.GetAttribute(name)

	return ok
}
