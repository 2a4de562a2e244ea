// Package rewrite applies encryption rules to a parsed document: it locates
// the target nodes, encrypts their markup and writes the placeholders.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/pagecrypt/internal/config"
	"github.com/guided-traffic/pagecrypt/internal/htmldoc"
	"github.com/guided-traffic/pagecrypt/internal/monitoring"
	"github.com/guided-traffic/pagecrypt/internal/password"
	"github.com/guided-traffic/pagecrypt/pkg/encryption"
)

// Marker attributes written on replaced nodes so the decryptor can find
// where each payload goes back
const (
	AttrName  = "data-pagecrypt-name"
	AttrIndex = "data-pagecrypt-index"
	AttrMode  = "data-pagecrypt-mode"

	ModeInner = "inner"
	ModeOuter = "outer"
)

// Warning reasons recorded in metrics
const (
	ReasonNodeNotFound    = "node_not_found"
	ReasonInvalidSelector = "invalid_selector"
	ReasonEmptyPassword   = "empty_password"
)

var (
	// ErrNodeNotFound means the rule selector matched nothing; the rule is skipped
	ErrNodeNotFound = errors.New("selector matched no nodes")

	// ErrInvalidSelector means the rule selector does not compile; the rule is skipped
	ErrInvalidSelector = htmldoc.ErrInvalidSelector
)

// IsWarning reports whether err only skips the rule rather than failing the article
func IsWarning(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrInvalidSelector)
}

// Passwords carries the fallback passwords for one article
type Passwords struct {
	Article string
	Default string
}

// Entry is the encrypted output of one rule
type Entry struct {
	Name      string
	SelectAll bool
	Payloads  []string
}

// Value returns what goes into the result map: a single payload, or the
// ordered list of payloads for selectAll rules
func (e *Entry) Value() any {
	if e.SelectAll {
		return e.Payloads
	}
	if len(e.Payloads) == 0 {
		return ""
	}
	return e.Payloads[0]
}

// fragment is one matched node with everything read from it before mutation
type fragment struct {
	node     htmldoc.NodeID
	content  string
	password password.Resolution
}

// Engine applies rules to documents
type Engine struct {
	codec    encryption.FragmentEncryptor
	resolver *password.Resolver
	metrics  *monitoring.Metrics
	logger   *logrus.Entry
}

// NewEngine creates a rewrite engine
func NewEngine(codec encryption.FragmentEncryptor, resolver *password.Resolver, metrics *monitoring.Metrics, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.WithField("component", "rewrite_engine")
	}
	if resolver == nil {
		resolver = password.NewResolver(logger)
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Engine{
		codec:    codec,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// ApplyRule encrypts every node rule selects in doc and returns the payloads.
// ruleSet only labels logs and metrics.
//
// The whole match set is resolved, and every fragment read and encrypted,
// before the first mutation; replacing one node never changes what another
// match in the same pass encrypts.
func (e *Engine) ApplyRule(ctx context.Context, doc *htmldoc.Document, rule config.Rule, ruleSet string, pw Passwords) (*Entry, error) {
	log := e.logger.WithFields(logrus.Fields{
		"rule":       rule.Name,
		"selector":   rule.Selector,
		"select_all": rule.SelectAll,
	})

	nodes, err := e.match(doc, rule)
	if err != nil {
		if errors.Is(err, ErrInvalidSelector) {
			e.metrics.RecordRuleWarning(ReasonInvalidSelector)
		}
		return nil, err
	}
	if len(nodes) == 0 {
		e.metrics.RecordRuleWarning(ReasonNodeNotFound)
		return nil, fmt.Errorf("%w: rule %q selector %q", ErrNodeNotFound, rule.Name, rule.Selector)
	}
	log.WithField("matches", len(nodes)).Debug("Resolved rule targets")

	fragments, err := e.extract(doc, rule, nodes, pw)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Name:      rule.Name,
		SelectAll: rule.SelectAll,
		Payloads:  make([]string, 0, len(fragments)),
	}

	for i, f := range fragments {
		if f.password.Source == password.SourceEmpty {
			e.metrics.RecordRuleWarning(ReasonEmptyPassword)
			log.WithField("index", i).Warn("No password configured for fragment, encrypting with an empty password")
		}

		started := time.Now()
		payload, err := e.codec.EncryptFragment(ctx, f.content, f.password.Password)
		if err != nil {
			return nil, fmt.Errorf("rule %q: failed to encrypt fragment %d: %w", rule.Name, i, err)
		}
		e.metrics.RecordFragment(ruleSet, len(f.content), time.Since(started))

		log.WithFields(logrus.Fields{
			"index":           i,
			"password_source": f.password.Source,
			"plaintext_bytes": len(f.content),
		}).Debug("Encrypted fragment")

		entry.Payloads = append(entry.Payloads, payload)
	}

	if rule.Replace != nil {
		if err := e.replace(doc, rule, fragments, log); err != nil {
			return nil, err
		}
	} else if rule.Password != "" {
		log.Warn("Rule reads its password from the page but has no replacement; the password element stays visible")
	}

	return entry, nil
}

func (e *Engine) match(doc *htmldoc.Document, rule config.Rule) ([]htmldoc.NodeID, error) {
	if rule.SelectAll {
		nodes, err := doc.QueryAll(doc.Root(), rule.Selector)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		return nodes, nil
	}

	node, ok, err := doc.Query(doc.Root(), rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
	}
	if !ok {
		return nil, nil
	}
	return []htmldoc.NodeID{node}, nil
}

// extract reads content and passwords for all matches. Inner markup is
// encrypted when the node itself survives (innerHTML replacement); outer
// markup otherwise, so the decryptor can rebuild the element.
func (e *Engine) extract(doc *htmldoc.Document, rule config.Rule, nodes []htmldoc.NodeID, pw Passwords) ([]fragment, error) {
	inner := rule.Replace != nil && rule.Replace.UseInnerHTML()

	fragments := make([]fragment, 0, len(nodes))
	for i, node := range nodes {
		var (
			content string
			err     error
		)
		if inner {
			content, err = doc.InnerHTML(node)
		} else {
			content, err = doc.OuterHTML(node)
		}
		if err != nil {
			return nil, fmt.Errorf("rule %q: failed to serialize match %d: %w", rule.Name, i, err)
		}

		fragments = append(fragments, fragment{
			node:     node,
			content:  content,
			password: e.resolver.Resolve(rule, doc, node, pw.Article, pw.Default),
		})
	}
	return fragments, nil
}

// replace writes the placeholders. A failed write is returned: the caller
// must not publish a page whose plaintext is still in place.
func (e *Engine) replace(doc *htmldoc.Document, rule config.Rule, fragments []fragment, log *logrus.Entry) error {
	for i, f := range fragments {
		if doc.Valid(f.node) && !doc.Attached(f.node) {
			// An earlier match in this pass contained this one and was already replaced
			log.WithField("index", i).Debug("Match no longer in document, skipping replacement")
			continue
		}

		var err error
		if rule.Replace.UseInnerHTML() {
			err = replaceInner(doc, f.node, rule, i)
		} else {
			err = doc.SetOuterHTML(f.node, outerPlaceholder(rule, i))
		}
		if err != nil {
			return fmt.Errorf("rule %q: failed to write placeholder %d: %w", rule.Name, i, err)
		}
	}
	return nil
}

func replaceInner(doc *htmldoc.Document, node htmldoc.NodeID, rule config.Rule, index int) error {
	if err := doc.SetInnerHTML(node, rule.Replace.Content); err != nil {
		return err
	}
	if err := doc.SetAttr(node, AttrName, rule.Name); err != nil {
		return err
	}
	if err := doc.SetAttr(node, AttrIndex, strconv.Itoa(index)); err != nil {
		return err
	}
	return doc.SetAttr(node, AttrMode, ModeInner)
}

func outerPlaceholder(rule config.Rule, index int) string {
	return fmt.Sprintf(`<div %s="%s" %s="%d" %s="%s">%s</div>`,
		AttrName, html.EscapeString(rule.Name),
		AttrIndex, index,
		AttrMode, ModeOuter,
		rule.Replace.Content)
}
