package x402

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceConfigValidate(t *testing.T) {
	res := testResource()
	require.NoError(t, res.Validate())
	assert.Equal(t, "application/json", res.MimeType)
	assert.Equal(t, DefaultMaxTimeout, res.MaxTimeout)

	tests := []struct {
		name   string
		mutate func(*ResourceConfig)
	}{
		{"missing path", func(r *ResourceConfig) { r.Path = "" }},
		{"missing amount", func(r *ResourceConfig) { r.Amount = "" }},
		{"missing network", func(r *ResourceConfig) { r.Network = "" }},
		{"missing asset", func(r *ResourceConfig) { r.Asset = "" }},
		{"missing payTo", func(r *ResourceConfig) { r.PayTo = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := testResource()
			tt.mutate(&res)
			err := res.Validate()
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidConfig, ErrorCode(err))
		})
	}
}

func TestResourceConfigChallenge(t *testing.T) {
	res := testResource()
	res.MaxTimeout = 5 * time.Minute
	require.NoError(t, res.Validate())

	challenge := res.Challenge()
	assert.Equal(t, ProtocolVersion, challenge.X402Version)
	assert.Equal(t, res.Path, challenge.Resource.URL)
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, 300, challenge.Accepts[0].MaxTimeoutSeconds)
	assert.Equal(t, res.PayTo, challenge.Accepts[0].PayTo)
}
