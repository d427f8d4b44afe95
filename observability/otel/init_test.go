package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "dlan-node"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("authorization=Bearer abc, x-team = ledger,,broken")
	require.Equal(t, map[string]string{"authorization": "Bearer abc", "x-team": "ledger"}, headers)
}
