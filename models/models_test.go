package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInactivityTimeout(t *testing.T) {
	tests := []struct {
		name    string
		minutes float64
		want    time.Duration
	}{
		{"unset uses default", 0, 20 * time.Minute},
		{"negative uses default", -5, 20 * time.Minute},
		{"within range", 5, 5 * time.Minute},
		{"fractional", 0.5, 30 * time.Second},
		{"at ceiling", 20, 20 * time.Minute},
		{"above ceiling is clamped", 45, 20 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Preferences{InactivityTimeoutMinutes: tt.minutes}
			assert.Equal(t, tt.want, p.InactivityTimeout())
		})
	}
}

func TestPendingRequestPreservesPayloadOrder(t *testing.T) {
	payload := `{"z":1,"a":{"y":2,"b":3}}`
	in := PendingBwAppRequest{
		RequestID: "r1",
		Type:      "/KeriAuth/BW/request",
		Payload:   json.RawMessage(payload),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out PendingBwAppRequest
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, payload, string(out.Payload))
}

func TestConfigurationHasPasscode(t *testing.T) {
	assert.False(t, Configuration{}.HasPasscode())
	assert.False(t, Configuration{PasscodeHash: []byte{1}}.HasPasscode())
	assert.True(t, Configuration{PasscodeHash: []byte{1}, PasscodeSalt: []byte{2}}.HasPasscode())
}
