package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeBlockEngine отвечает на JSON-RPC методы бандлов.
type fakeBlockEngine struct {
	t          *testing.T
	credential string

	mu       sync.Mutex
	sent     [][]string
	statuses map[string]string
	queries  [][]string
}

func newFakeBlockEngine(t *testing.T, credential string) (*fakeBlockEngine, *httptest.Server) {
	engine := &fakeBlockEngine{t: t, credential: credential, statuses: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(engine.serve))
	t.Cleanup(srv.Close)
	return engine, srv
}

func (f *fakeBlockEngine) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != bundlesPath {
		http.NotFound(w, r)
		return
	}
	if f.credential != "" && r.Header.Get(authHeader) != f.credential {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32001,"message":"unauthorized"}}`))
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result interface{}
	f.mu.Lock()
	switch req.Method {
	case methodGetTipAccounts:
		result = []string{TipProgramID.String()}
	case methodSendBundle:
		var txs []string
		var opts map[string]string
		assert.NoError(f.t, json.Unmarshal(req.Params[0], &txs))
		assert.NoError(f.t, json.Unmarshal(req.Params[1], &opts))
		assert.Equal(f.t, "base64", opts["encoding"])
		f.sent = append(f.sent, txs)
		result = "bundle-" + string(rune('a'+len(f.sent)-1))
	case methodGetInflightStatuses:
		var ids []string
		assert.NoError(f.t, json.Unmarshal(req.Params[0], &ids))
		f.queries = append(f.queries, ids)
		value := make([]map[string]interface{}, 0, len(ids))
		for _, id := range ids {
			status, ok := f.statuses[id]
			if !ok {
				status = string(StatusInvalid)
			}
			entry := map[string]interface{}{"bundle_id": id, "status": status, "landed_slot": nil}
			if status == string(StatusLanded) {
				entry["landed_slot"] = 4242
			}
			value = append(value, entry)
		}
		result = map[string]interface{}{"context": map[string]interface{}{"slot": 4243}, "value": value}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (f *fakeBlockEngine) setStatus(id string, status BundleStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = string(status)
}

func testTransaction(t *testing.T) *solana.Transaction {
	t.Helper()
	payer := solana.NewWallet()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer.PublicKey(), solana.NewWallet().PublicKey()).Build()},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	tx.Message.SetVersion(solana.MessageVersionV0)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func TestBundlesEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "mainnet.block-engine.jito.wtf", want: "https://mainnet.block-engine.jito.wtf/api/v1/bundles"},
		{in: "https://ny.mainnet.block-engine.jito.wtf/", want: "https://ny.mainnet.block-engine.jito.wtf/api/v1/bundles"},
		{in: "http://127.0.0.1:8080/api/v1/bundles", want: "http://127.0.0.1:8080/api/v1/bundles"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := BundlesEndpoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := BundlesEndpoint("  ")
	assert.Error(t, err)
}

func TestJitoRelay_AuthenticateRejected(t *testing.T) {
	_, srv := newFakeBlockEngine(t, "secret")
	relay, err := NewJitoRelay(srv.URL, JitoOptions{}, zap.NewNop())
	require.NoError(t, err)

	_, err = relay.Authenticate(context.Background(), "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRelayAuth))

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, relay.Endpoint(), authErr.Endpoint)
	assert.Contains(t, err.Error(), "getTipAccounts: rpc error -32001: unauthorized")
}

func TestJitoRelay_SendAndAwaitLanded(t *testing.T) {
	engine, srv := newFakeBlockEngine(t, "secret")
	relay, err := NewJitoRelay(srv.URL, JitoOptions{
		PollInterval:   10 * time.Millisecond,
		ConfirmTimeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	session, err := relay.Authenticate(ctx, "secret")
	require.NoError(t, err)

	stream, err := session.SubscribeResults(ctx)
	require.NoError(t, err)
	defer stream.Close()

	tx := testTransaction(t)
	bundleID, err := session.SendBundle(ctx, []*solana.Transaction{tx})
	require.NoError(t, err)
	assert.Equal(t, "bundle-a", bundleID)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, engine.sent, 1)
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString(raw)}, engine.sent[0])

	go func() {
		time.Sleep(30 * time.Millisecond)
		engine.setStatus(bundleID, StatusLanded)
	}()

	res, err := stream.Await(ctx, bundleID)
	require.NoError(t, err)
	assert.Equal(t, StatusLanded, res.Status)
	assert.Equal(t, uint64(4242), res.Slot)
}

func TestJitoSession_SendBundleRejectsOversize(t *testing.T) {
	_, srv := newFakeBlockEngine(t, "")
	relay, err := NewJitoRelay(srv.URL, JitoOptions{}, zap.NewNop())
	require.NoError(t, err)

	session, err := relay.Authenticate(context.Background(), "")
	require.NoError(t, err)

	txs := make([]*solana.Transaction, MaxBundleTransactions+1)
	for i := range txs {
		txs[i] = testTransaction(t)
	}
	_, err = session.SendBundle(context.Background(), txs)
	assert.Error(t, err)
}

func TestJitoSession_FetchStatusesBatches(t *testing.T) {
	engine, srv := newFakeBlockEngine(t, "")
	relay, err := NewJitoRelay(srv.URL, JitoOptions{}, zap.NewNop())
	require.NoError(t, err)

	session, err := relay.Authenticate(context.Background(), "")
	require.NoError(t, err)

	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	engine.setStatus("g", StatusFailed)

	results, err := session.(*jitoSession).fetchStatuses(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, results, len(ids))
	assert.Equal(t, StatusFailed, results[6].Status)
	assert.Equal(t, StatusInvalid, results[0].Status)

	require.Len(t, engine.queries, 2)
	assert.Len(t, engine.queries[0], maxStatusQuery)
	assert.Len(t, engine.queries[1], 2)
}
