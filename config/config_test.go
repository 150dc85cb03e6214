package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-token-secret", "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:80", cfg.Addr)
	assert.Equal(t, 120*time.Second, cfg.TokenTTL)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, UploadLocal, cfg.UploadBackend)
	assert.Equal(t, int64(10<<20), cfg.UploadMaxBytes)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "http://localhost:80", cfg.Url())
}

func TestParseEnvDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "from-env")
	t.Setenv("PORT", "8081")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TokenSecret)
	assert.Equal(t, "0.0.0.0:8081", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"no secret", nil, "-token-secret"},
		{"bad log format", []string{"-token-secret", "x", "-log-format", "xml"}, "-log-format"},
		{"bad store", []string{"-token-secret", "x", "-store", "postgres"}, "-store"},
		{"gcs without bucket", []string{"-token-secret", "x", "-upload-backend", "gcs"}, "-gcs-bucket"},
		{"admin without password", []string{"-token-secret", "x", "-admin-user", "root"}, "-admin-password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKEN_SECRET", "")
			_, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
