package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rovshanmuradov/solana-bundler/internal/bundle"
	"github.com/rovshanmuradov/solana-bundler/internal/distribution"
	"github.com/rovshanmuradov/solana-bundler/internal/relay"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", badRequest("txns is empty"), http.StatusBadRequest},
		{"malformed", &bundle.MalformedTransactionError{Index: 2, Err: errors.New("eof")}, http.StatusBadRequest},
		{"bounds inside abort", fmt.Errorf("%w: %w", distribution.ErrRunAborted, &distribution.InvalidAllocationBoundsError{Reason: "x"}), http.StatusBadRequest},
		{"auth", &relay.AuthError{Endpoint: "e", Err: errors.New("401")}, http.StatusBadGateway},
		{"submission inside abort", fmt.Errorf("%w: %w", distribution.ErrRunAborted, &relay.SubmissionError{Chunk: 1, Err: errors.New("failed")}), http.StatusBadGateway},
		{"timeout", fmt.Errorf("await result: %w", relay.ErrConfirmationTimeout), http.StatusBadGateway},
		{"ledger", errors.New("rpc down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
