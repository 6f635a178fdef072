package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions(t *testing.T) {
	tests := []struct {
		uri    string
		direct *bool
	}{
		{"mongodb://localhost:27017", ptr(true)},
		{"mongodb://localhost:27017/", ptr(true)},
		{"mongodb://localhost:27017/evals?appName=qcbench", ptr(true)},
		{"mongodb://localhost:27017/?directConnection=false", ptr(false)},
		{"mongodb://localhost:27017/?replicaSet=rs0", nil},
		{"mongodb://a:27017,b:27017", nil},
	}

	for _, tt := range tests {
		opts := clientOptions(tt.uri, "", "")
		require.NoError(t, opts.Validate(), tt.uri)
		assert.Equal(t, tt.direct, opts.Direct, tt.uri)
		assert.Nil(t, opts.Auth, tt.uri)
	}

	opts := clientOptions("mongodb://localhost:27017", "admin", "secret")
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "admin", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
}

func ptr[T any](v T) *T {
	return &v
}
