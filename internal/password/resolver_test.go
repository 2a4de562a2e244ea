package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/pagecrypt/internal/config"
	"github.com/guided-traffic/pagecrypt/internal/htmldoc"
)

const page = `<html><head></head><body>
<article id="a"><span id="pwd" hidden> abc </span><p>Secret</p></article>
<article id="b"><p>No password here</p><span id="empty"> </span></article>
</body></html>`

func setup(t *testing.T, selector string) (*htmldoc.Document, htmldoc.NodeID) {
	t.Helper()
	doc, err := htmldoc.Parse(strings.NewReader(page))
	require.NoError(t, err)
	node, ok, err := doc.Query(doc.Root(), selector)
	require.NoError(t, err)
	require.True(t, ok)
	return doc, node
}

func TestResolve_Precedence(t *testing.T) {
	tests := []struct {
		name            string
		node            string
		rulePassword    string
		articlePassword string
		defaultPassword string
		expected        Resolution
	}{
		{
			name:            "dom password wins over everything",
			node:            "#a",
			rulePassword:    "#pwd",
			articlePassword: "article",
			defaultPassword: "default",
			expected:        Resolution{Password: "abc", Source: SourceDOM},
		},
		{
			name:            "missing dom password falls back to article",
			node:            "#b",
			rulePassword:    "#pwd",
			articlePassword: "article",
			defaultPassword: "default",
			expected:        Resolution{Password: "article", Source: SourceArticle},
		},
		{
			name:            "missing dom password and article falls back to default",
			node:            "#b",
			rulePassword:    "#pwd",
			defaultPassword: "default",
			expected:        Resolution{Password: "default", Source: SourceDefault},
		},
		{
			name:            "blank dom password falls back",
			node:            "#b",
			rulePassword:    "#empty",
			articlePassword: "article",
			expected:        Resolution{Password: "article", Source: SourceArticle},
		},
		{
			name:            "no rule password uses article",
			node:            "#a",
			articlePassword: "article",
			defaultPassword: "default",
			expected:        Resolution{Password: "article", Source: SourceArticle},
		},
		{
			name:            "no rule password and no article uses default",
			node:            "#a",
			defaultPassword: "default",
			expected:        Resolution{Password: "default", Source: SourceDefault},
		},
		{
			name:     "nothing anywhere resolves to empty",
			node:     "#b",
			expected: Resolution{Source: SourceEmpty},
		},
		{
			name:            "invalid selector falls back",
			node:            "#a",
			rulePassword:    "span[",
			defaultPassword: "default",
			expected:        Resolution{Password: "default", Source: SourceDefault},
		},
	}

	r := NewResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, node := setup(t, tt.node)
			rule := config.Rule{Name: "r", Selector: "article", Password: tt.rulePassword}

			got := r.Resolve(rule, doc, node, tt.articlePassword, tt.defaultPassword)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolve_ScopedToNodeSubtree(t *testing.T) {
	// #pwd lives inside #a, so resolving for #b must not see it
	doc, nodeB := setup(t, "#b")
	rule := config.Rule{Name: "r", Selector: "article", Password: "#pwd"}

	got := NewResolver(nil).Resolve(rule, doc, nodeB, "", "default")
	assert.Equal(t, SourceDefault, got.Source)
}
