// internal/relay/stream.go
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// statusFetcher возвращает текущие статусы набора бандлов.
type statusFetcher interface {
	fetchStatuses(ctx context.Context, ids []string) ([]BundleResult, error)
}

// pollingStream опрашивает статусы ожидаемых бандлов одной горутиной.
type pollingStream struct {
	fetcher statusFetcher
	opts    JitoOptions
	logger  *zap.Logger

	mu      sync.Mutex
	waiters map[string]chan BundleResult

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newPollingStream(ctx context.Context, fetcher statusFetcher, opts JitoOptions, logger *zap.Logger) *pollingStream {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}

	pollCtx, cancel := context.WithCancel(ctx)
	s := &pollingStream{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.Named("result-stream"),
		waiters: make(map[string]chan BundleResult),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(pollCtx)
	return s
}

// Await ждёт финальный статус бандла. Дедлайн ожидания задаётся потоком.
func (s *pollingStream) Await(ctx context.Context, bundleID string) (BundleResult, error) {
	ch := make(chan BundleResult, 1)

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return BundleResult{}, ErrStreamClosed
	default:
	}
	s.waiters[bundleID] = ch
	s.mu.Unlock()

	defer s.forget(bundleID)

	timer := time.NewTimer(s.opts.ConfirmTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		return BundleResult{}, fmt.Errorf("%w: bundle %s after %s", ErrConfirmationTimeout, bundleID, s.opts.ConfirmTimeout)
	case <-s.done:
		return BundleResult{}, ErrStreamClosed
	case <-ctx.Done():
		return BundleResult{}, ctx.Err()
	}
}

// Close останавливает поллер. Повторный вызов безопасен.
func (s *pollingStream) Close() error {
	s.once.Do(func() {
		s.cancel()
	})
	<-s.done
	return nil
}

func (s *pollingStream) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *pollingStream) poll(ctx context.Context) {
	ids := s.pending()
	if len(ids) == 0 {
		return
	}

	results, err := s.fetcher.fetchStatuses(ctx, ids)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Failed to fetch bundle statuses", zap.Int("bundles", len(ids)), zap.Error(err))
		}
		return
	}

	for _, res := range results {
		// Invalid означает, что бандл ещё не виден block engine.
		if !res.Status.Terminal() {
			continue
		}
		if res.Status == StatusFailed && res.Detail == "" {
			res.Detail = "bundle failed on block engine"
		}
		s.deliver(res)
	}
}

func (s *pollingStream) pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.waiters))
	for id := range s.waiters {
		ids = append(ids, id)
	}
	return ids
}

func (s *pollingStream) deliver(res BundleResult) {
	s.mu.Lock()
	ch, ok := s.waiters[res.BundleID]
	if ok {
		delete(s.waiters, res.BundleID)
	}
	s.mu.Unlock()

	if ok {
		ch <- res
	}
}

func (s *pollingStream) forget(bundleID string) {
	s.mu.Lock()
	delete(s.waiters, bundleID)
	s.mu.Unlock()
}
