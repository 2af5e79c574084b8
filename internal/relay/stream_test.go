package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	results map[string]BundleResult
	err     error
	calls   int
}

func (f *scriptedFetcher) fetchStatuses(_ context.Context, ids []string) ([]BundleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]BundleResult, 0, len(ids))
	for _, id := range ids {
		if res, ok := f.results[id]; ok {
			out = append(out, res)
			continue
		}
		out = append(out, BundleResult{BundleID: id, Status: StatusInvalid})
	}
	return out, nil
}

func (f *scriptedFetcher) set(res BundleResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[res.BundleID] = res
}

func fastOptions() JitoOptions {
	return JitoOptions{PollInterval: 5 * time.Millisecond, ConfirmTimeout: 200 * time.Millisecond}
}

func TestPollingStream_DeliversTerminalStatus(t *testing.T) {
	fetcher := &scriptedFetcher{results: map[string]BundleResult{
		"landed": {BundleID: "landed", Status: StatusLanded, Slot: 7},
		"failed": {BundleID: "failed", Status: StatusFailed},
	}}
	stream := newPollingStream(context.Background(), fetcher, fastOptions(), zap.NewNop())
	defer stream.Close()

	res, err := stream.Await(context.Background(), "landed")
	require.NoError(t, err)
	assert.Equal(t, StatusLanded, res.Status)
	assert.Equal(t, uint64(7), res.Slot)

	res, err = stream.Await(context.Background(), "failed")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.Detail)
}

func TestPollingStream_InvalidKeepsWaiting(t *testing.T) {
	fetcher := &scriptedFetcher{results: map[string]BundleResult{}}
	stream := newPollingStream(context.Background(), fetcher, fastOptions(), zap.NewNop())
	defer stream.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		fetcher.set(BundleResult{BundleID: "late", Status: StatusLanded, Slot: 9})
	}()

	res, err := stream.Await(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, StatusLanded, res.Status)
}

func TestPollingStream_Timeout(t *testing.T) {
	fetcher := &scriptedFetcher{results: map[string]BundleResult{}}
	opts := JitoOptions{PollInterval: 5 * time.Millisecond, ConfirmTimeout: 30 * time.Millisecond}
	stream := newPollingStream(context.Background(), fetcher, opts, zap.NewNop())
	defer stream.Close()

	_, err := stream.Await(context.Background(), "never")
	assert.True(t, errors.Is(err, ErrConfirmationTimeout))
}

func TestPollingStream_FetchErrorsAreRetried(t *testing.T) {
	fetcher := &scriptedFetcher{results: map[string]BundleResult{}, err: errors.New("503")}
	stream := newPollingStream(context.Background(), fetcher, fastOptions(), zap.NewNop())
	defer stream.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		fetcher.mu.Lock()
		fetcher.err = nil
		fetcher.results["flaky"] = BundleResult{BundleID: "flaky", Status: StatusLanded}
		fetcher.mu.Unlock()
	}()

	res, err := stream.Await(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, StatusLanded, res.Status)
}

func TestPollingStream_Close(t *testing.T) {
	fetcher := &scriptedFetcher{results: map[string]BundleResult{}}
	stream := newPollingStream(context.Background(), fetcher, JitoOptions{
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: time.Minute,
	}, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Await(context.Background(), "pending")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrStreamClosed))
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Close")
	}

	_, err := stream.Await(context.Background(), "after-close")
	assert.True(t, errors.Is(err, ErrStreamClosed))
}
