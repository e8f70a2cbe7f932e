package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSecrets(string) (string, error) { return "", nil }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), WithSecretLookup(noSecrets))
	require.NoError(t, err)

	assert.True(t, s.Enabled)
	assert.Equal(t, DefaultIntervalMinutes, s.IntervalMinutes)
	assert.Equal(t, 6*time.Second, s.InitialDelay)
	assert.Equal(t, 10, s.BatchSize)
	assert.Equal(t, 5, s.MaxSendAttempts)
	assert.Equal(t, 7*24*time.Hour, s.CommentMaxAge)
	assert.Equal(t, 30*24*time.Hour, s.DedupRetention)
	assert.Equal(t, DefaultCycleLeaseTTL, s.CycleLeaseTTL)
	assert.Equal(t, 15*time.Second, s.Sink.Timeout)
	assert.Equal(t, 30*time.Second, s.GitLab.RequestTimeout)
	assert.Equal(t, SinkTelegram, s.Sink.Kind)
	assert.True(t, s.NotifyComments)
	assert.True(t, s.NotifyPipelines)
	assert.False(t, s.NotifyOwnComments)
	assert.Empty(t, s.MonitoredProjects)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
identity: " alice "
monitored_projects: [123, "group/app", ""]
interval_minutes: 5
notify_pipelines: false
gitlab:
  url: https://gitlab.example.com/
  token: glpat-x
telegram:
  bot_token: "1:abc"
  chat_id: "42"
`)
	s, err := Load(path, WithSecretLookup(noSecrets))
	require.NoError(t, err)

	assert.Equal(t, "alice", s.Identity)
	assert.Equal(t, []string{"123", "group/app"}, s.MonitoredProjects)
	assert.Equal(t, 5*time.Minute, s.Interval())
	assert.False(t, s.NotifyPipelines)
	assert.Equal(t, "https://gitlab.example.com", s.GitLab.URL)

	ok, reason := s.Ready()
	assert.True(t, ok, reason)
}

func TestLoad_ClampsInterval(t *testing.T) {
	s, err := Load(writeConfig(t, "interval_minutes: 500\n"), WithSecretLookup(noSecrets))
	require.NoError(t, err)
	assert.Equal(t, MaxIntervalMinutes, s.IntervalMinutes)

	s, err = Load(writeConfig(t, "interval_minutes: -3\n"), WithSecretLookup(noSecrets))
	require.NoError(t, err)
	assert.Equal(t, MinIntervalMinutes, s.IntervalMinutes)
}

func TestLoad_RejectsUnknownSink(t *testing.T) {
	_, err := Load(writeConfig(t, "sink:\n  kind: slack\n"), WithSecretLookup(noSecrets))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack")
}

func TestLoad_RejectsRetentionShorterThanMaxAge(t *testing.T) {
	_, err := Load(writeConfig(t, "comment_max_age: 168h\ndedup_retention: 72h\n"), WithSecretLookup(noSecrets))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup_retention")

	s, err := Load(writeConfig(t, "comment_max_age: 24h\ndedup_retention: 48h\n"), WithSecretLookup(noSecrets))
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, s.DedupRetention)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("NOTIFIER_IDENTITY", "bob")
	t.Setenv("NOTIFIER_GITLAB_TOKEN", "from-env")

	s, err := Load(writeConfig(t, "identity: alice\n"), WithSecretLookup(noSecrets))
	require.NoError(t, err)
	assert.Equal(t, "bob", s.Identity)
	assert.Equal(t, "from-env", s.GitLab.Token)
}

func TestLoad_SecretFallback(t *testing.T) {
	lookup := func(key string) (string, error) {
		switch key {
		case "gitlab.token":
			return "keyring-token", nil
		case "telegram.bot_token":
			return "keyring-bot", nil
		}
		return "", nil
	}
	s, err := Load(writeConfig(t, "telegram:\n  bot_token: inline\n"), WithSecretLookup(lookup))
	require.NoError(t, err)

	assert.Equal(t, "keyring-token", s.GitLab.Token)
	assert.Equal(t, "inline", s.Telegram.BotToken, "file value wins over keyring")
}

func TestReady(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), WithSecretLookup(noSecrets))
	require.NoError(t, err)

	ok, reason := s.Ready()
	assert.False(t, ok)
	assert.Contains(t, reason, "gitlab")

	s.GitLab.URL, s.GitLab.Token = "https://g", "t"
	ok, reason = s.Ready()
	assert.False(t, ok)
	assert.Contains(t, reason, "telegram")

	s.Sink.Kind = SinkFeishu
	s.Feishu = FeishuConfig{AppID: "a", AppSecret: "b", ChatID: "c"}
	ok, _ = s.Ready()
	assert.True(t, ok)

	s.Enabled = false
	ok, reason = s.Ready()
	assert.False(t, ok)
	assert.Equal(t, "notifier disabled", reason)
}

func TestSaveMonitoredProjects(t *testing.T) {
	path := writeConfig(t, "identity: alice\n")
	require.NoError(t, SaveMonitoredProjects(path, []string{"1", "2"}))

	s, err := Load(path, WithSecretLookup(noSecrets))
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Identity)
	assert.Equal(t, []string{"1", "2"}, s.MonitoredProjects)
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifier.log")
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	logger.Debug("cycle finished")
	require.NoError(t, logger.Sync())

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"service":"review-notifier"`)
	assert.Contains(t, string(out), "cycle finished")

	_, err = NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
