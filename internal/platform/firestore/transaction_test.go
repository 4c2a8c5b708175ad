package firestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxConfigDefaults(t *testing.T) {
	cfg := newTxConfig()
	assert.Equal(t, defaultTxAttempts, cfg.attempts)
	assert.Equal(t, defaultTxTimeout, cfg.timeout)
	assert.False(t, cfg.readOnly)
	assert.Len(t, cfg.transactionOptions(), 1)
}

func TestTxConfigOptions(t *testing.T) {
	cfg := newTxConfig(WithTxAttempts(12), WithTxTimeout(3*time.Second), WithReadOnly(), nil)
	assert.Equal(t, 12, cfg.attempts)
	assert.Equal(t, 3*time.Second, cfg.timeout)
	assert.True(t, cfg.readOnly)
	assert.Len(t, cfg.transactionOptions(), 2)

	cfg = newTxConfig(WithTxAttempts(0), WithTxTimeout(-time.Second))
	assert.Equal(t, defaultTxAttempts, cfg.attempts, "non-positive attempts are ignored")
	assert.Equal(t, defaultTxTimeout, cfg.timeout, "non-positive timeouts are ignored")
}

func TestRunTransactionRequiresClient(t *testing.T) {
	err := RunTransaction(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client is nil")
}
