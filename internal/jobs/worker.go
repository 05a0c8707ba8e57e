// Package jobs runs periodic ingestion work outside the request path.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"go.uber.org/zap"
)

// Processor performs one pass of pending work.
type Processor interface {
	Process(ctx context.Context) error
}

// Worker calls a Processor once on start and then on every tick until
// stopped or its context ends.
type Worker struct {
	processor    Processor
	pollInterval time.Duration
	logger       *zap.Logger
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a Worker. pollInterval must be positive.
func NewWorker(processor Processor, pollInterval time.Duration, logger *zap.Logger) (*Worker, error) {
	if pollInterval <= 0 {
		return nil, domain.ErrInvalidInterval.Wrap(fmt.Errorf("got %s", pollInterval))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		logger:       logger,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}, nil
}

// Start runs the polling loop and blocks until the worker stops.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.logger.Info("worker started", zap.Duration("poll_interval", w.pollInterval))
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", zap.String("cause", "context cancelled"))
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped", zap.String("cause", "stop requested"))
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if err := w.processor.Process(ctx); err != nil {
		w.logger.Error("processing failed", zap.Error(err))
	}
}

// Stop signals the loop to exit and waits for it.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
