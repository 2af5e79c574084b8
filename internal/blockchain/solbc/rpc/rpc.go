// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-bundler/internal/utils/metrics"
)

// Основные константы
const (
	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
	reqTimeout    = 10 * time.Second
)

// RPCClient - клиент поверх нескольких узлов с переключением при ошибке
type RPCClient struct {
	nodes   []*solanarpc.Client
	urls    []string
	current int
	mu      sync.Mutex
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewClient создает новый RPC клиент
func NewClient(urls []string, logger *zap.Logger) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}

	nodes := make([]*solanarpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = solanarpc.New(url)
	}

	return &RPCClient{
		nodes:  nodes,
		urls:   append([]string(nil), urls...),
		logger: logger.Named("rpc-client"),
	}, nil
}

// WithMetrics включает учёт задержек RPC по узлам.
func (c *RPCClient) WithMetrics(collector *metrics.Collector) *RPCClient {
	c.metrics = collector
	return c
}

// next возвращает текущий узел и сдвигает указатель на следующий
func (c *RPCClient) next() (*solanarpc.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, url := c.nodes[c.current], c.urls[c.current]
	c.current = (c.current + 1) % len(c.nodes)
	return node, url
}

// ExecuteWithRetry выполняет RPC-запрос, переходя к следующему узлу после каждой ошибки.
// Неповторяемые ошибки возвращаются сразу.
func (c *RPCClient) ExecuteWithRetry(ctx context.Context, method string, operation func(context.Context, *solanarpc.Client) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, reqTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryDelay
	policy.MaxInterval = retryDelay * 4

	var lastURL string
	op := func() (struct{}, error) {
		node, url := c.next()
		lastURL = url
		start := time.Now()
		err := operation(timeoutCtx, node)
		c.metrics.RecordRPCLatency(method, url, time.Since(start))
		if err == nil {
			return struct{}{}, nil
		}
		if !IsRetryableError(err) {
			return struct{}{}, backoff.Permanent(NewError(err, url, method))
		}
		return struct{}{}, NewError(err, url, method)
	}

	notify := func(err error, next time.Duration) {
		c.logger.Debug("RPC request failed, trying next node",
			zap.String("method", method),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	_, err := backoff.Retry(timeoutCtx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(retryAttempts*len(c.nodes))),
		backoff.WithNotify(notify),
	)
	if err != nil && ctx.Err() == nil && timeoutCtx.Err() != nil {
		c.logger.Warn("RPC request timed out", zap.String("method", method), zap.Error(err))
		return NewError(ErrTimeout, lastURL, method)
	}
	return err
}

// GetLatestBlockhash получает последний blockhash
func (c *RPCClient) GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error) {
	var result *solanarpc.GetLatestBlockhashResult
	err := c.ExecuteWithRetry(ctx, "getLatestBlockhash", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetLatestBlockhash(ctx, commitment)
		return err
	})
	return result, err
}

// GetSignatureStatuses получает статусы подписей
func (c *RPCClient) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error) {
	var result *solanarpc.GetSignatureStatusesResult
	err := c.ExecuteWithRetry(ctx, "getSignatureStatuses", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetSignatureStatuses(ctx, false, signatures...)
		return err
	})
	return result, err
}

// GetHealth проверяет здоровье узла
func (c *RPCClient) GetHealth(ctx context.Context) (string, error) {
	var result string
	err := c.ExecuteWithRetry(ctx, "getHealth", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetHealth(ctx)
		return err
	})
	return result, err
}

// Close закрывает соединения всех узлов
func (c *RPCClient) Close() error {
	for _, node := range c.nodes {
		_ = node.Close()
	}
	return nil
}
