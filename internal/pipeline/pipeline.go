// Package pipeline runs the encryption rules over every configured article
// and writes the rewritten pages back in place.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/guided-traffic/pagecrypt/internal/config"
	"github.com/guided-traffic/pagecrypt/internal/decryptor"
	"github.com/guided-traffic/pagecrypt/internal/htmldoc"
	"github.com/guided-traffic/pagecrypt/internal/monitoring"
	"github.com/guided-traffic/pagecrypt/internal/password"
	"github.com/guided-traffic/pagecrypt/internal/rewrite"
	"github.com/guided-traffic/pagecrypt/pkg/encryption"
)

// Marker attribute on injected scripts
const (
	ScriptMarker    = "data-pagecrypt"
	ScriptData      = "data"
	ScriptDecryptor = "decryptor"

	// DataVariable is the global the payload map is assigned to
	DataVariable = "window.__ENCRYPT_DATA__"
)

// Rule-set labels
const (
	RuleSetAll     = "all"
	RuleSetPartial = "partial"
)

// Options tune a pipeline run
type Options struct {
	Workers   int
	Force     bool
	Encryptor encryption.FragmentEncryptor
	Metrics   *monitoring.Metrics
	Logger    *logrus.Entry
}

// Pipeline processes the articles of one encryption config
type Pipeline struct {
	fs      afero.Fs
	cfg     *config.EncryptionConfig
	rootDir string
	script  string
	engine  *rewrite.Engine
	metrics *monitoring.Metrics
	logger  *logrus.Entry
	runID   string
	workers int
	force   bool
}

// ArticleResult describes what happened to one article
type ArticleResult struct {
	Article  config.Article
	Path     string
	Status   string
	Results  *ResultMap
	Warnings int
	Err      error
}

// Report summarizes a run
type Report struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Encrypted int
	Skipped   int
	Failed    int
	Articles  []*ArticleResult
}

// AllSucceeded reports whether every article was encrypted
func (r *Report) AllSucceeded() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// New creates a pipeline for cfg. Files are read and written through fs.
func New(fs afero.Fs, cfg *config.EncryptionConfig, opts Options) (*Pipeline, error) {
	runID := uuid.New().String()

	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithFields(logrus.Fields{
		"component": "pipeline",
		"run_id":    runID,
	})

	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	encryptor := opts.Encryptor
	if encryptor == nil {
		encryptor = encryption.NewFragmentCodec()
	}

	rootDir := cfg.ResolveRootDir()
	script, err := decryptor.Load(fs, rootDir, cfg.DecryptorScript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfigLoad, err)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	engineLogger := logger.WithField("component", "rewrite_engine")
	engine := rewrite.NewEngine(encryptor, password.NewResolver(logger.WithField("component", "password_resolver")), metrics, engineLogger)

	return &Pipeline{
		fs:      fs,
		cfg:     cfg,
		rootDir: rootDir,
		script:  script,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		runID:   runID,
		workers: workers,
		force:   opts.Force,
	}, nil
}

// RunID identifies this pipeline in logs
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run processes every article in config order. Article failures are logged
// and counted; only a missing root directory or cancellation abort the run.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:    p.runID,
		Started:  time.Now(),
		Articles: make([]*ArticleResult, len(p.cfg.Articles)),
	}

	exists, err := afero.DirExists(p.fs, p.rootDir)
	if err != nil || !exists {
		return nil, fmt.Errorf("root directory not found: %s", p.rootDir)
	}

	if p.cfg.TotalCount != 0 && p.cfg.TotalCount != len(p.cfg.Articles) {
		p.logger.WithFields(logrus.Fields{
			"total_count": p.cfg.TotalCount,
			"articles":    len(p.cfg.Articles),
		}).Warn("totalCount does not match the number of articles")
	}

	p.logger.WithFields(logrus.Fields{
		"root_dir": p.rootDir,
		"articles": len(p.cfg.Articles),
		"workers":  p.workers,
	}).Info("Starting encryption run")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, article := range p.cfg.Articles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.ProcessArticle(gctx, article)
			report.Articles[i] = res
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, res := range report.Articles {
		switch res.Status {
		case monitoring.StatusEncrypted:
			report.Encrypted++
		case monitoring.StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	report.Finished = time.Now()
	p.metrics.RecordRun(report.Started, report.Finished)

	p.logger.WithFields(logrus.Fields{
		"encrypted": report.Encrypted,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"duration":  report.Finished.Sub(report.Started).String(),
	}).Info("Encryption run finished")

	return report, nil
}

// ProcessArticle encrypts one article in place. The returned result is never
// nil; its Status is also recorded in metrics.
func (p *Pipeline) ProcessArticle(ctx context.Context, article config.Article) (*ArticleResult, error) {
	path := filepath.Join(p.rootDir, article.FilePath)
	log := p.logger.WithFields(logrus.Fields{
		"title":     article.Title,
		"path":      path,
		"unique_id": article.UniqueID,
	})

	res := &ArticleResult{
		Article: article,
		Path:    path,
		Results: NewResultMap(),
	}

	err := p.processArticle(ctx, article, path, res, log)
	res.Err = err
	switch {
	case err == nil:
		res.Status = monitoring.StatusEncrypted
		log.WithFields(logrus.Fields{
			"rules":    res.Results.Len(),
			"warnings": res.Warnings,
		}).Info("Encrypted article")
	case errors.Is(err, ErrDocumentParse), errors.Is(err, ErrAlreadyEncrypted):
		res.Status = monitoring.StatusSkipped
		log.WithError(err).Warn("Skipped article")
	default:
		res.Status = monitoring.StatusFailed
		log.WithError(err).Error("Failed to encrypt article")
	}
	p.metrics.RecordArticle(res.Status)

	return res, err
}

func (p *Pipeline) processArticle(ctx context.Context, article config.Article, path string, res *ArticleResult, log *logrus.Entry) error {
	raw, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentParse, err)
	}
	src, hadBOM := stripBOM(raw)

	doc, err := htmldoc.Parse(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentParse, err)
	}

	if !doc.HasSourceElement("head") {
		return ErrMissingInjectionPoint
	}
	head, ok, err := doc.Query(doc.Root(), "head")
	if err != nil || !ok {
		return ErrMissingInjectionPoint
	}

	if err := p.clearPreviousRun(doc, head, log); err != nil {
		return err
	}

	ruleSet := RuleSetPartial
	if article.All {
		ruleSet = RuleSetAll
	}
	passwords := rewrite.Passwords{Article: article.Password, Default: p.cfg.DefaultPassword}

	for _, rule := range p.cfg.RulesFor(article) {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := p.engine.ApplyRule(ctx, doc, rule, ruleSet, passwords)
		if rewrite.IsWarning(err) {
			res.Warnings++
			log.WithError(err).WithField("rule", rule.Name).Warn("Skipped rule")
			continue
		}
		if err != nil {
			return err
		}
		res.Results.Set(entry.Name, entry.Value())
	}

	if !doc.Attached(head) {
		// A rule replaced <head> or one of its ancestors; the payloads would be lost
		return fmt.Errorf("%w: removed by a replacement rule", ErrMissingInjectionPoint)
	}
	if err := p.inject(doc, head, res.Results); err != nil {
		return err
	}

	out, err := doc.Render()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	data := []byte(out)
	if hadBOM {
		data = append(append([]byte(nil), utf8BOM...), data...)
	}

	if err := writeFileAtomic(p.fs, path, data); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}

// clearPreviousRun rejects a page that already carries injected scripts, or
// removes them when forced
func (p *Pipeline) clearPreviousRun(doc *htmldoc.Document, head htmldoc.NodeID, log *logrus.Entry) error {
	scripts, err := doc.QueryAll(head, "script["+ScriptMarker+"]")
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return nil
	}
	if !p.force {
		return ErrAlreadyEncrypted
	}

	log.Warn("Document was encrypted before, replacing previous payloads")
	for _, s := range scripts {
		if err := doc.SetOuterHTML(s, ""); err != nil {
			return fmt.Errorf("failed to remove previous script: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) inject(doc *htmldoc.Document, head htmldoc.NodeID, results *ResultMap) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode payload map: %w", err)
	}

	markup := fmt.Sprintf(`<script %s="%s">%s = %s;</script><script %s="%s">%s</script>`,
		ScriptMarker, ScriptData, DataVariable, data,
		ScriptMarker, ScriptDecryptor, p.script)

	return doc.AppendHTML(head, markup)
}
