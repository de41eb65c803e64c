package signify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/storage/memory"
	"github.com/jmcleod/keriauth/store"
)

func TestRequireConnection(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.NewRepository(), memory.NewRepository())
	calls := 0
	client := RequireConnection(s, ClientFunc(func(_ context.Context, req SignHeadersRequest) (map[string]string, error) {
		calls++
		return map[string]string{"Signature": "sig-" + req.Prefix}, nil
	}))
	req := SignHeadersRequest{Prefix: "EAbc", Method: "GET", URL: "https://example.com/api"}

	_, err := client.SignHeaders(ctx, req)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, calls)

	require.NoError(t, store.Set(ctx, s, models.ConnectionInfoKind, models.ConnectionInfo{
		AgentPrefix: "EAgent", AdminURL: "http://localhost:3901", ConnectedAtUtc: time.Now(),
	}))
	headers, err := client.SignHeaders(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "sig-EAbc", headers["Signature"])

	_, err = client.SignHeaders(ctx, SignHeadersRequest{URL: req.URL})
	require.ErrorIs(t, err, ErrNoPrefix)
	assert.Equal(t, 1, calls)
}

func TestDisconnected(t *testing.T) {
	_, err := Disconnected{}.SignHeaders(context.Background(), SignHeadersRequest{Prefix: "E"})
	require.ErrorIs(t, err, ErrNotConnected)
}
