// Package htmldoc adapts goquery to the tree capability the rewrite engine
// needs: parse, query by CSS selector, serialize and mutate markup.
//
// Nodes are addressed through NodeID handles owned by the Document. A handle
// is invalidated when its node is replaced through SetOuterHTML, and any later
// use reports ErrStaleHandle instead of touching a detached node.
package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// NodeID is an index into a Document's node arena
type NodeID int

// InvalidNode is returned alongside errors and for missing matches
const InvalidNode NodeID = -1

var (
	// ErrStaleHandle is returned for handles whose node was replaced
	ErrStaleHandle = errors.New("stale node handle")

	// ErrInvalidSelector is returned when a CSS selector does not compile
	ErrInvalidSelector = errors.New("invalid CSS selector")

	// ErrDetached is returned when mutating a node that an earlier mutation
	// already removed from the document tree
	ErrDetached = errors.New("node is detached from the document")
)

// Document owns a parsed HTML tree and the arena of handles into it
type Document struct {
	doc        *goquery.Document
	nodes      []*html.Node
	index      map[*html.Node]NodeID
	sourceTags map[string]bool
}

// Parse reads and parses an HTML document
func Parse(r io.Reader) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTML: %w", err)
	}

	sourceTags, err := scanStartTags(src)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize HTML: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := &Document{
		doc:        doc,
		index:      make(map[*html.Node]NodeID),
		sourceTags: sourceTags,
	}
	d.register(doc.Selection.Nodes[0])
	return d, nil
}

// scanStartTags records the element names written literally in the source.
// The HTML5 parser synthesizes html, head and body when they are missing, so
// the parsed tree alone cannot tell whether the author provided them.
func scanStartTags(src []byte) (map[string]bool, error) {
	tags := make(map[string]bool)
	z := html.NewTokenizer(bytes.NewReader(src))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return tags, nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags[strings.ToLower(string(name))] = true
		}
	}
}

// HasSourceElement reports whether the source markup contained a start tag
// for the named element
func (d *Document) HasSourceElement(name string) bool {
	return d.sourceTags[strings.ToLower(name)]
}

// Root returns the handle of the document node
func (d *Document) Root() NodeID {
	return 0
}

func (d *Document) register(n *html.Node) NodeID {
	if id, ok := d.index[n]; ok {
		return id
	}
	id := NodeID(len(d.nodes))
	d.nodes = append(d.nodes, n)
	d.index[n] = id
	return id
}

func (d *Document) invalidate(id NodeID) {
	if n := d.nodes[id]; n != nil {
		delete(d.index, n)
		d.nodes[id] = nil
	}
}

func (d *Document) node(id NodeID) (*html.Node, error) {
	if id < 0 || int(id) >= len(d.nodes) || d.nodes[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrStaleHandle, id)
	}
	return d.nodes[id], nil
}

func (d *Document) selection(id NodeID) (*goquery.Selection, error) {
	n, err := d.node(id)
	if err != nil {
		return nil, err
	}
	if id == d.Root() {
		return d.doc.Selection, nil
	}
	return goquery.NewDocumentFromNode(n).Selection, nil
}

// Valid reports whether id still refers to a live node
func (d *Document) Valid(id NodeID) bool {
	_, err := d.node(id)
	return err == nil
}

// Attached reports whether the node is still reachable from the document root
func (d *Document) Attached(id NodeID) bool {
	n, err := d.node(id)
	if err != nil {
		return false
	}
	root := d.nodes[d.Root()]
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Tag returns the element name of the node, or "" for non-element nodes
func (d *Document) Tag(id NodeID) string {
	n, err := d.node(id)
	if err != nil || n.Type != html.ElementNode {
		return ""
	}
	return n.Data
}

func compile(selector string) (goquery.Matcher, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, selector, err)
	}
	return m, nil
}

// Query returns the first descendant of id matching selector. The boolean is
// false when nothing matches.
func (d *Document) Query(id NodeID, selector string) (NodeID, bool, error) {
	sel, err := d.selection(id)
	if err != nil {
		return InvalidNode, false, err
	}
	m, err := compile(selector)
	if err != nil {
		return InvalidNode, false, err
	}

	found := sel.FindMatcher(m)
	if found.Length() == 0 {
		return InvalidNode, false, nil
	}
	return d.register(found.Nodes[0]), true, nil
}

// QueryAll returns every descendant of id matching selector, in document order
func (d *Document) QueryAll(id NodeID, selector string) ([]NodeID, error) {
	sel, err := d.selection(id)
	if err != nil {
		return nil, err
	}
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}

	found := sel.FindMatcher(m)
	ids := make([]NodeID, 0, found.Length())
	for _, n := range found.Nodes {
		ids = append(ids, d.register(n))
	}
	return ids, nil
}

// OuterHTML serializes the node including its own tag
func (d *Document) OuterHTML(id NodeID) (string, error) {
	sel, err := d.selection(id)
	if err != nil {
		return "", err
	}
	if id == d.Root() {
		return sel.Html()
	}
	return goquery.OuterHtml(sel)
}

// InnerHTML serializes the children of the node
func (d *Document) InnerHTML(id NodeID) (string, error) {
	sel, err := d.selection(id)
	if err != nil {
		return "", err
	}
	return sel.Html()
}

// Text returns the combined text content of the node and its descendants
func (d *Document) Text(id NodeID) (string, error) {
	sel, err := d.selection(id)
	if err != nil {
		return "", err
	}
	return sel.Text(), nil
}

// SetInnerHTML replaces the children of the node with markup. Handles to
// former descendants stay valid but are no longer Attached.
func (d *Document) SetInnerHTML(id NodeID, markup string) error {
	sel, err := d.selection(id)
	if err != nil {
		return err
	}
	sel.SetHtml(markup)
	return nil
}

// SetOuterHTML replaces the node itself with markup and invalidates id
func (d *Document) SetOuterHTML(id NodeID, markup string) error {
	if id == d.Root() {
		return fmt.Errorf("cannot replace the document node")
	}
	if !d.Attached(id) {
		if !d.Valid(id) {
			_, err := d.node(id)
			return err
		}
		return ErrDetached
	}
	sel, err := d.selection(id)
	if err != nil {
		return err
	}
	sel.ReplaceWithHtml(markup)
	d.invalidate(id)
	return nil
}

// AppendHTML parses markup and appends it as the last children of the node
func (d *Document) AppendHTML(id NodeID, markup string) error {
	sel, err := d.selection(id)
	if err != nil {
		return err
	}
	sel.AppendHtml(markup)
	return nil
}

// SetAttr sets an attribute on an element node
func (d *Document) SetAttr(id NodeID, name, value string) error {
	sel, err := d.selection(id)
	if err != nil {
		return err
	}
	sel.SetAttr(name, value)
	return nil
}

// Attr returns the value of an attribute on an element node
func (d *Document) Attr(id NodeID, name string) (string, bool) {
	sel, err := d.selection(id)
	if err != nil {
		return "", false
	}
	return sel.Attr(name)
}

// Render serializes the whole document
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.nodes[d.Root()]); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}
