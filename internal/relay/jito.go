// internal/relay/jito.go
package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

const (
	bundlesPath = "/api/v1/bundles"
	authHeader  = "x-jito-auth"

	methodGetTipAccounts      = "getTipAccounts"
	methodSendBundle          = "sendBundle"
	methodGetInflightStatuses = "getInflightBundleStatuses"

	// maxStatusQuery - лимит идентификаторов в одном getInflightBundleStatuses.
	maxStatusQuery = 5

	DefaultPollInterval   = 1 * time.Second
	DefaultConfirmTimeout = 60 * time.Second
)

// JitoOptions задаёт параметры опроса потока результатов.
type JitoOptions struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// JitoRelay реализует Relay поверх JSON-RPC API block engine.
type JitoRelay struct {
	endpoint string
	opts     JitoOptions
	logger   *zap.Logger
}

// NewJitoRelay создаёт релей для указанного block engine.
func NewJitoRelay(blockEngineURL string, opts JitoOptions, logger *zap.Logger) (*JitoRelay, error) {
	endpoint, err := BundlesEndpoint(blockEngineURL)
	if err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &JitoRelay{
		endpoint: endpoint,
		opts:     opts,
		logger:   logger.Named("jito"),
	}, nil
}

// Endpoint возвращает полный URL метода бандлов.
func (r *JitoRelay) Endpoint() string {
	return r.endpoint
}

// BundlesEndpoint приводит адрес block engine к URL метода бандлов.
// "mainnet.block-engine.jito.wtf" -> "https://mainnet.block-engine.jito.wtf/api/v1/bundles".
func BundlesEndpoint(blockEngineURL string) (string, error) {
	u := strings.TrimSpace(blockEngineURL)
	if u == "" {
		return "", errors.New("block engine url is empty")
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	u = strings.TrimRight(u, "/")
	if !strings.HasSuffix(u, bundlesPath) {
		u += bundlesPath
	}
	return u, nil
}

// Authenticate проверяет учётные данные пробным запросом getTipAccounts.
func (r *JitoRelay) Authenticate(ctx context.Context, credential string) (Session, error) {
	headers := map[string]string{}
	if credential != "" {
		headers[authHeader] = credential
	}
	client := jsonrpc.NewClientWithOpts(r.endpoint, &jsonrpc.RPCClientOpts{CustomHeaders: headers})

	var tipAccounts []string
	if err := client.CallForInto(ctx, &tipAccounts, methodGetTipAccounts, nil); err != nil {
		return nil, &AuthError{Endpoint: r.endpoint, Err: &CallError{Method: methodGetTipAccounts, Err: err}}
	}

	r.logger.Info("Relay authenticated",
		zap.String("endpoint", r.endpoint),
		zap.Int("tip_accounts", len(tipAccounts)))

	return &jitoSession{
		client: client,
		relay:  r,
	}, nil
}

type jitoSession struct {
	client jsonrpc.RPCClient
	relay  *JitoRelay
}

// SendBundle сериализует транзакции в base64 и отправляет их одним бандлом.
func (s *jitoSession) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	if len(txs) == 0 || len(txs) > MaxBundleTransactions {
		return "", fmt.Errorf("bundle size %d out of range [1, %d]", len(txs), MaxBundleTransactions)
	}

	encoded := make([]string, len(txs))
	for i, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("serialize transaction %d: %w", i, err)
		}
		encoded[i] = base64.StdEncoding.EncodeToString(raw)
	}

	var bundleID string
	params := []interface{}{encoded, map[string]string{"encoding": "base64"}}
	if err := s.client.CallForInto(ctx, &bundleID, methodSendBundle, params); err != nil {
		return "", &CallError{Method: methodSendBundle, Err: err}
	}
	if bundleID == "" {
		return "", errors.New("block engine returned empty bundle id")
	}
	return bundleID, nil
}

// SubscribeResults запускает один поллер статусов на прогон.
func (s *jitoSession) SubscribeResults(ctx context.Context) (ResultStream, error) {
	return newPollingStream(ctx, s, s.relay.opts, s.relay.logger), nil
}

type inflightStatusResponse struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []inflightStatus `json:"value"`
}

type inflightStatus struct {
	BundleID   string       `json:"bundle_id"`
	Status     BundleStatus `json:"status"`
	LandedSlot *uint64      `json:"landed_slot"`
}

// fetchStatuses запрашивает статусы пачками не более maxStatusQuery идентификаторов.
func (s *jitoSession) fetchStatuses(ctx context.Context, ids []string) ([]BundleResult, error) {
	results := make([]BundleResult, 0, len(ids))
	for start := 0; start < len(ids); start += maxStatusQuery {
		end := start + maxStatusQuery
		if end > len(ids) {
			end = len(ids)
		}

		var resp inflightStatusResponse
		params := []interface{}{ids[start:end]}
		if err := s.client.CallForInto(ctx, &resp, methodGetInflightStatuses, params); err != nil {
			return nil, &CallError{Method: methodGetInflightStatuses, Err: err}
		}
		for _, st := range resp.Value {
			res := BundleResult{BundleID: st.BundleID, Status: st.Status}
			if st.LandedSlot != nil {
				res.Slot = *st.LandedSlot
			}
			results = append(results, res)
		}
	}
	return results, nil
}
