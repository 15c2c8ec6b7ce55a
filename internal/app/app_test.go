package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/pnw-deals/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		debugSeen bool
		contains  string
	}{
		{name: "debug text", cfg: config.LogConfig{Level: "debug", Format: "text"}, debugSeen: true, contains: "msg=hello"},
		{name: "info json", cfg: config.LogConfig{Level: "info", Format: "json"}, contains: `"msg":"hello"`},
		{name: "unknown level falls back to info", cfg: config.LogConfig{Level: "loud"}, contains: "msg=hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.cfg, &buf)

			logger.Debug("debug-line")
			logger.Info("hello")

			assert.Contains(t, buf.String(), tt.contains)
			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte("debug-line")))
		})
	}
}

func TestNewSender(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*config.Config)
		wantProvider string
		wantErr      bool
	}{
		{
			name:         "resend",
			mutate:       func(c *config.Config) { c.Resend.APIKey = "re_test" },
			wantProvider: "resend",
		},
		{
			name:    "resend without key",
			mutate:  func(*config.Config) {},
			wantErr: true,
		},
		{
			name: "smtp",
			mutate: func(c *config.Config) {
				c.Newsletter.Provider = config.ProviderSMTP
				c.SMTP.Host = "localhost"
			},
			wantProvider: "smtp",
		},
		{
			name: "ses with static keys",
			mutate: func(c *config.Config) {
				c.Newsletter.Provider = config.ProviderSES
				c.SES.AccessKeyID = "AKIATEST"
				c.SES.SecretAccessKey = "secret"
			},
			wantProvider: "ses",
		},
		{
			name:    "unknown",
			mutate:  func(c *config.Config) { c.Newsletter.Provider = "fax" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Newsletter: config.NewsletterConfig{Provider: config.ProviderResend},
				SES:        config.SESConfig{Region: "us-west-2"},
				SMTP:       config.SMTPConfig{Port: 1025},
			}
			tt.mutate(cfg)

			sender, err := newSender(context.Background(), cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, sender.Provider())
		})
	}
}

func TestNewRedisClient(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		client, err := newRedisClient(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := newRedisClient(context.Background(), config.RedisConfig{URL: "http://nope"})
		require.Error(t, err)
	})

	t.Run("connected", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := newRedisClient(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		require.NotNil(t, client)
		t.Cleanup(func() { _ = client.Close() })
		assert.Equal(t, "redis", lockBackend(client))
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := newRedisClient(context.Background(), config.RedisConfig{URL: "redis://" + addr})
		require.Error(t, err)
	})
}

func TestNewSchedule(t *testing.T) {
	schedule, err := newSchedule(config.ScheduleConfig{Weekday: "Mon", Hour: 9, Minute: 30})
	require.NoError(t, err)
	assert.Equal(t, time.Monday, schedule.Weekday)
	assert.Equal(t, 9, schedule.Hour)
	assert.Equal(t, 30, schedule.Minute)

	_, err = newSchedule(config.ScheduleConfig{Weekday: "someday"})
	require.Error(t, err)
}

func TestLockBackend_Postgres(t *testing.T) {
	assert.Equal(t, "postgres", lockBackend(nil))
}
