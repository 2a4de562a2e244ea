// Package password decides which password protects a matched fragment.
package password

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/pagecrypt/internal/config"
	"github.com/guided-traffic/pagecrypt/internal/htmldoc"
)

// Source names where a resolved password came from
type Source string

const (
	SourceDOM     Source = "dom"
	SourceArticle Source = "article"
	SourceDefault Source = "default"
	SourceEmpty   Source = "empty"
)

// Resolution is the outcome of resolving a password for one node
type Resolution struct {
	Password string
	Source   Source
}

// Resolver resolves per-fragment passwords
type Resolver struct {
	logger *logrus.Entry
}

// NewResolver creates a password resolver
func NewResolver(logger *logrus.Entry) *Resolver {
	if logger == nil {
		logger = logrus.WithField("component", "password_resolver")
	}
	return &Resolver{logger: logger}
}

// Resolve returns the password for node under rule.
//
// A non-empty rule password is a CSS selector evaluated inside node; the
// trimmed text of the first match wins. Otherwise, or when that lookup comes
// up empty, the article password is used, then the global default.
func (r *Resolver) Resolve(rule config.Rule, doc *htmldoc.Document, node htmldoc.NodeID, articlePassword, defaultPassword string) Resolution {
	if rule.Password != "" {
		if pw, ok := r.lookup(rule, doc, node); ok {
			return Resolution{Password: pw, Source: SourceDOM}
		}
	}

	return fallback(articlePassword, defaultPassword)
}

func (r *Resolver) lookup(rule config.Rule, doc *htmldoc.Document, node htmldoc.NodeID) (string, bool) {
	log := r.logger.WithFields(logrus.Fields{
		"rule":              rule.Name,
		"password_selector": rule.Password,
	})

	found, ok, err := doc.Query(node, rule.Password)
	if err != nil {
		log.WithError(err).Warn("Password selector lookup failed, falling back")
		return "", false
	}
	if !ok {
		log.Debug("Password selector matched nothing, falling back")
		return "", false
	}

	text, err := doc.Text(found)
	if err != nil {
		log.WithError(err).Warn("Failed to read password element, falling back")
		return "", false
	}

	pw := strings.TrimSpace(text)
	if pw == "" {
		log.Debug("Password element is empty, falling back")
		return "", false
	}
	return pw, true
}

func fallback(articlePassword, defaultPassword string) Resolution {
	switch {
	case articlePassword != "":
		return Resolution{Password: articlePassword, Source: SourceArticle}
	case defaultPassword != "":
		return Resolution{Password: defaultPassword, Source: SourceDefault}
	default:
		return Resolution{Source: SourceEmpty}
	}
}
