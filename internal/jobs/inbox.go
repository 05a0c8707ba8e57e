package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"go.uber.org/zap"
)

const (
	// MaxAttempts bounds how often a file with collaborator failures is retried.
	MaxAttempts = 3

	DoneDir   = "done"
	FailedDir = "failed"
)

// Ingester stores one document.
type Ingester interface {
	Ingest(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error)
}

// DecodeFunc reads the documents in one inbox file.
type DecodeFunc func(r io.Reader) ([]*domain.Document, error)

// FileReport summarizes one processed inbox file.
type FileReport struct {
	File      string
	Accepted  int
	Duplicate int
	Rejected  int
	Failed    int
}

// InboxProcessor ingests document files dropped into a directory. A file
// moves to done/ once every document in it was accepted, deduplicated or
// rejected, and to failed/ when it cannot be decoded or its collaborator
// failures persist for MaxAttempts passes. Re-ingesting a file is safe
// because accepted documents come back as duplicates.
type InboxProcessor struct {
	dir      string
	ingester Ingester
	decode   DecodeFunc
	logger   *zap.Logger
	attempts map[string]int
	onReport func(FileReport)
}

// NewInboxProcessor creates an InboxProcessor over dir. onReport, when not
// nil, is called after each file.
func NewInboxProcessor(dir string, ingester Ingester, decode DecodeFunc, logger *zap.Logger, onReport func(FileReport)) *InboxProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxProcessor{
		dir:      dir,
		ingester: ingester,
		decode:   decode,
		logger:   logger,
		attempts: make(map[string]int),
		onReport: onReport,
	}
}

// Process implements Processor.
func (p *InboxProcessor) Process(ctx context.Context) error {
	files, err := p.pending()
	if err != nil {
		return fmt.Errorf("failed to list inbox: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	p.logger.Debug("processing inbox", zap.String("dir", p.dir), zap.Int("files", len(files)))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processFile(ctx, name); err != nil {
			p.logger.Error("inbox file failed", zap.String("file", name), zap.Error(err))
		}
	}
	return nil
}

func (p *InboxProcessor) pending() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".jsonl":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *InboxProcessor) processFile(ctx context.Context, name string) error {
	path := filepath.Join(p.dir, name)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	docs, err := p.decode(f)
	f.Close()
	if err != nil {
		p.logger.Warn("inbox file unreadable", zap.String("file", name), zap.Error(err))
		return p.move(name, FailedDir)
	}

	report := FileReport{File: name}
	for _, doc := range docs {
		result, err := p.ingester.Ingest(ctx, doc)
		switch {
		case err != nil && domain.IsCollaboratorFailure(err):
			report.Failed++
		case result == nil:
			report.Rejected++
		case result.Status == domain.IngestAccepted:
			report.Accepted++
		case result.Status == domain.IngestDuplicate:
			report.Duplicate++
		default:
			report.Rejected++
		}
	}
	if p.onReport != nil {
		p.onReport(report)
	}

	if report.Failed == 0 {
		delete(p.attempts, name)
		p.logger.Info("inbox file ingested",
			zap.String("file", name),
			zap.Int("accepted", report.Accepted),
			zap.Int("duplicate", report.Duplicate),
			zap.Int("rejected", report.Rejected),
		)
		return p.move(name, DoneDir)
	}

	p.attempts[name]++
	if p.attempts[name] >= MaxAttempts {
		delete(p.attempts, name)
		p.logger.Warn("inbox file exceeded max attempts",
			zap.String("file", name),
			zap.Int("failed", report.Failed),
			zap.Int("max_attempts", MaxAttempts),
		)
		return p.move(name, FailedDir)
	}

	p.logger.Warn("inbox file will be retried",
		zap.String("file", name),
		zap.Int("failed", report.Failed),
		zap.Int("attempt", p.attempts[name]),
	)
	return nil
}

func (p *InboxProcessor) move(name, sub string) error {
	target := filepath.Join(p.dir, sub)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	return os.Rename(filepath.Join(p.dir, name), filepath.Join(target, name))
}
