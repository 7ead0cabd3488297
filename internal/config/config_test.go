package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/tutorlink")
	t.Setenv("ENV", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "dev-secret", cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.False(t, cfg.MinioUseSSL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://db/tutorlink")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("ACCESS_TOKEN_TTL", "90m")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "30s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 2, cfg.RedisDB)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 90*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 30*time.Second, cfg.ExpirySweepInterval)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing dsn",
			env:  map[string]string{"DB_DSN": ""},
			want: "DB_DSN is required",
		},
		{
			name: "missing secret in production",
			env:  map[string]string{"DB_DSN": "x", "ENV": "production", "JWT_SECRET": ""},
			want: "JWT_SECRET is required",
		},
		{
			name: "bad duration",
			env:  map[string]string{"DB_DSN": "x", "EXPIRY_SWEEP_INTERVAL": "soon"},
			want: "parse EXPIRY_SWEEP_INTERVAL",
		},
		{
			name: "bad port",
			env:  map[string]string{"DB_DSN": "x", "SMTP_PORT": "smtp"},
			want: "parse SMTP_PORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", "")
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
