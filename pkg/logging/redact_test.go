package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"keyword form", "host=db port=5432 user=ekaya password=s3cret dbname=composites",
			"host=db port=5432 user=ekaya password=[REDACTED] dbname=composites"},
		{"url form", "postgres://ekaya:s3cret@db:5432/composites?sslmode=disable",
			"postgres://ekaya:[REDACTED]@db:5432/composites?sslmode=disable"},
		{"no secret", "host=db dbname=composites", "host=db dbname=composites"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactDSN(tt.in))
		})
	}
}

func TestRedactError(t *testing.T) {
	assert.Equal(t, "", RedactError(nil))
	err := errors.New("failed to connect to postgres://u:pw@db/x")
	assert.NotContains(t, RedactError(err), "pw@")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}

func TestNew(t *testing.T) {
	for _, env := range []string{"local", "production"} {
		logger, err := New(env)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
	logger, err := New("production")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1)) // debug disabled in production
}
