package htmldoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!DOCTYPE html>
<html><head><title>t</title></head><body>
<div id="main"><div class="test">Hello World</div><span>Span1</span></div>
<div class="test">Second</div>
</body></html>`

func parse(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := Parse(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestQuery(t *testing.T) {
	doc := parse(t, testPage)

	id, ok, err := doc.Query(doc.Root(), ".test")
	require.NoError(t, err)
	require.True(t, ok)

	text, err := doc.Text(id)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)

	_, ok, err = doc.Query(doc.Root(), "article")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryAll_DocumentOrder(t *testing.T) {
	doc := parse(t, testPage)

	ids, err := doc.QueryAll(doc.Root(), ".test")
	require.NoError(t, err)
	require.Len(t, ids, 2)

	first, _ := doc.Text(ids[0])
	second, _ := doc.Text(ids[1])
	assert.Equal(t, "Hello World", first)
	assert.Equal(t, "Second", second)
}

func TestQueryAll_SelectorGroup(t *testing.T) {
	doc := parse(t, testPage)

	ids, err := doc.QueryAll(doc.Root(), "span, .test")
	require.NoError(t, err)
	require.Len(t, ids, 3)

	var texts []string
	for _, id := range ids {
		text, err := doc.Text(id)
		require.NoError(t, err)
		texts = append(texts, text)
	}
	assert.Equal(t, []string{"Hello World", "Span1", "Second"}, texts)

	first, ok, err := doc.Query(doc.Root(), "span, #main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "div", doc.Tag(first))
}

func TestQuery_ScopedToSubtree(t *testing.T) {
	doc := parse(t, testPage)

	main, ok, err := doc.Query(doc.Root(), "#main")
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := doc.QueryAll(main, ".test")
	require.NoError(t, err)
	assert.Len(t, ids, 1, "only descendants of #main are searched")
}

func TestQuery_SameNodeSameHandle(t *testing.T) {
	doc := parse(t, testPage)

	a, _, err := doc.Query(doc.Root(), "#main")
	require.NoError(t, err)
	b, _, err := doc.Query(doc.Root(), "div#main")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQuery_InvalidSelector(t *testing.T) {
	doc := parse(t, testPage)

	_, _, err := doc.Query(doc.Root(), "div[")
	assert.ErrorIs(t, err, ErrInvalidSelector)

	_, err = doc.QueryAll(doc.Root(), "")
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestOuterAndInnerHTML(t *testing.T) {
	doc := parse(t, testPage)

	id, _, err := doc.Query(doc.Root(), "#main")
	require.NoError(t, err)

	outer, err := doc.OuterHTML(id)
	require.NoError(t, err)
	assert.Equal(t, `<div id="main"><div class="test">Hello World</div><span>Span1</span></div>`, outer)

	inner, err := doc.InnerHTML(id)
	require.NoError(t, err)
	assert.Equal(t, `<div class="test">Hello World</div><span>Span1</span>`, inner)

	assert.Equal(t, "div", doc.Tag(id))
}

func TestSetInnerHTML(t *testing.T) {
	doc := parse(t, testPage)

	main, _, _ := doc.Query(doc.Root(), "#main")
	child, _, _ := doc.Query(main, "span")
	require.True(t, doc.Attached(child))

	require.NoError(t, doc.SetInnerHTML(main, "<b>Bold</b><i>Italic</i>"))

	inner, err := doc.InnerHTML(main)
	require.NoError(t, err)
	assert.Equal(t, "<b>Bold</b><i>Italic</i>", inner)

	assert.True(t, doc.Valid(child), "former children keep their handle")
	assert.False(t, doc.Attached(child), "but are no longer in the tree")
}

func TestSetOuterHTML_InvalidatesHandle(t *testing.T) {
	doc := parse(t, testPage)

	ids, err := doc.QueryAll(doc.Root(), ".test")
	require.NoError(t, err)
	require.Len(t, ids, 2)

	require.NoError(t, doc.SetOuterHTML(ids[0], "<section class='test'>Replaced Outer</section>"))
	assert.False(t, doc.Valid(ids[0]))

	_, err = doc.OuterHTML(ids[0])
	assert.ErrorIs(t, err, ErrStaleHandle)

	err = doc.SetOuterHTML(ids[0], "<p>again</p>")
	assert.ErrorIs(t, err, ErrStaleHandle)

	// The sibling collected in the same pass is untouched
	text, err := doc.Text(ids[1])
	require.NoError(t, err)
	assert.Equal(t, "Second", text)

	rendered, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, rendered, `<section class="test">Replaced Outer</section>`)
	assert.NotContains(t, rendered, "Hello World")
}

func TestSetOuterHTML_Detached(t *testing.T) {
	doc := parse(t, testPage)

	main, _, _ := doc.Query(doc.Root(), "#main")
	nested, _, _ := doc.Query(main, ".test")

	require.NoError(t, doc.SetOuterHTML(main, "<p>gone</p>"))
	err := doc.SetOuterHTML(nested, "<p>nested</p>")
	assert.ErrorIs(t, err, ErrDetached)
}

func TestSetOuterHTML_Root(t *testing.T) {
	doc := parse(t, testPage)
	assert.Error(t, doc.SetOuterHTML(doc.Root(), "<p>x</p>"))
}

func TestAppendHTMLAndAttr(t *testing.T) {
	doc := parse(t, testPage)

	head, ok, err := doc.Query(doc.Root(), "head")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, doc.AppendHTML(head, `<script>var x = 1;</script>`))
	require.NoError(t, doc.SetAttr(head, "data-test", "yes"))

	value, ok := doc.Attr(head, "data-test")
	assert.True(t, ok)
	assert.Equal(t, "yes", value)

	rendered, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, rendered, `<script>var x = 1;</script></head>`)
	assert.True(t, strings.HasPrefix(rendered, "<!DOCTYPE html>"))
}

func TestHasSourceElement(t *testing.T) {
	doc := parse(t, testPage)
	assert.True(t, doc.HasSourceElement("head"))
	assert.True(t, doc.HasSourceElement("HEAD"))

	fragment := parse(t, "<article>Secret</article>")
	assert.False(t, fragment.HasSourceElement("head"))

	// The parser still synthesizes a head element
	_, ok, err := fragment.Query(fragment.Root(), "head")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaleHandleRange(t *testing.T) {
	doc := parse(t, testPage)
	_, err := doc.Text(NodeID(999))
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = doc.Text(InvalidNode)
	assert.ErrorIs(t, err, ErrStaleHandle)
}
