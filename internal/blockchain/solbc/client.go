// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-bundler/internal/blockchain"
	solbcrpc "github.com/rovshanmuradov/solana-bundler/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-bundler/internal/utils/metrics"
)

const (
	defaultConfirmPoll    = 500 * time.Millisecond
	defaultConfirmTimeout = 30 * time.Second
)

// Client – тонкий адаптер леджера поверх пула RPC-узлов.
type Client struct {
	rpc            *solbcrpc.RPCClient
	confirmPoll    time.Duration
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// NewClient создаёт клиент для списка RPC URL.
func NewClient(rpcURLs []string, logger *zap.Logger) (*Client, error) {
	pool, err := solbcrpc.NewClient(rpcURLs, logger)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpc:            pool,
		confirmPoll:    defaultConfirmPoll,
		confirmTimeout: defaultConfirmTimeout,
		logger:         logger.Named("solbc-client"),
	}, nil
}

// WithConfirmation задаёт интервал опроса и таймаут подтверждения подписи.
func (c *Client) WithConfirmation(poll, timeout time.Duration) *Client {
	if poll > 0 {
		c.confirmPoll = poll
	}
	if timeout > 0 {
		c.confirmTimeout = timeout
	}
	return c
}

// WithMetrics передаёт коллектор пулу RPC-узлов.
func (c *Client) WithMetrics(collector *metrics.Collector) *Client {
	c.rpc.WithMetrics(collector)
	return c
}

// GetRecentBlockhash получает последний blockhash.
func (c *Client) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		c.logger.Error("GetRecentBlockhash error", zap.Error(err))
		return solana.Hash{}, err
	}
	if result == nil || result.Value == nil {
		return solana.Hash{}, fmt.Errorf("empty getLatestBlockhash response")
	}
	return result.Value.Blockhash, nil
}

// GetSignatureStatuses получает статусы транзакций.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	result, err := c.rpc.GetSignatureStatuses(ctx, signatures...)
	if err != nil {
		c.logger.Error("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// WaitForTransactionConfirmation ожидает, пока подпись достигнет commitment (polling).
func (c *Client) WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error {
	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()
	timeout := time.After(c.confirmTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("confirmation timeout for %s", signature)
		case <-ticker.C:
			statuses, err := c.GetSignatureStatuses(ctx, signature)
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", signature, status.Err)
			}
			if reached(status.ConfirmationStatus, commitment) {
				return nil
			}
		}
	}
}

// reached сравнивает статус подтверждения с требуемым уровнем.
func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return commitment != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return commitment == rpc.CommitmentProcessed
	default:
		return false
	}
}

// Health возвращает ошибку, если ни один узел не отвечает "ok".
func (c *Client) Health(ctx context.Context) error {
	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return err
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("rpc node unhealthy: %s", status)
	}
	return nil
}

// Close освобождает соединения.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Гарантируем, что Client реализует интерфейс blockchain.Client.
var _ blockchain.Client = (*Client)(nil)
