package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validConfig = `
database:
  host: db.internal
  port: 5433
  user: dispatch
  password: "s3cret"
  database: dispatch

rabbitmq:
  user: guest
  password: guest

server:
  port: 8080

jwt:
  access_secret: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
  refresh_secret: 'bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb'
  access_ttl_minutes: 15

payments:
  webhook_secret: pay-secret # inline comment
`

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, 5433, cfg.Database.Port)
	require.Equal(t, "s3cret", cfg.Database.Password, "quotes stripped")
	require.Equal(t, "dispatch", cfg.Database.Name)
	require.Equal(t, "pay-secret", cfg.Payments.WebhookSecret, "inline comment stripped")

	// defaults fill what the file omits
	require.Equal(t, "localhost", cfg.RabbitMQ.Host)
	require.Equal(t, 5672, cfg.RabbitMQ.Port)
	require.Equal(t, 256, cfg.Server.MaxConcurrent)
	require.Equal(t, 7, cfg.JWT.RefreshTTLDays)

	require.Equal(t, 15*time.Minute, cfg.AccessTTL())
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL())
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "short secrets",
			body: `
database:
  user: u
  password: p
  database: d
rabbitmq:
  user: u
  password: p
jwt:
  access_secret: short
  refresh_secret: short2
`,
			want: "at least 32 characters",
		},
		{
			name: "identical secrets",
			body: `
database:
  user: u
  password: p
  database: d
rabbitmq:
  user: u
  password: p
jwt:
  access_secret: cccccccccccccccccccccccccccccccc
  refresh_secret: cccccccccccccccccccccccccccccccc
`,
			want: "must differ",
		},
		{
			name: "missing database credentials",
			body: `
database:
  host: localhost
rabbitmq:
  user: u
  password: p
jwt:
  access_secret: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
  refresh_secret: bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb
`,
			want: "database.user is required",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tc.body))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Run("unknown top-level key", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, "redis:\n  host: x\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown top-level key")
	})

	t.Run("duplicate section", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, "server:\n  port: 1\nserver:\n  port: 2\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate")
	})

	t.Run("non-integer port", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, "server:\n  port: eighty\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be int")
	})

	t.Run("key before any section", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, "  port: 80\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "key without a section")
	})
}
