package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/config"
	"github.com/nhle/review-notifier/internal/sink"
	"github.com/nhle/review-notifier/internal/sink/feishu"
	"github.com/nhle/review-notifier/internal/sink/telegram"
	"github.com/nhle/review-notifier/internal/source/gitlab"
	"github.com/nhle/review-notifier/internal/store"
)

// app holds the collaborators shared by every command.
type app struct {
	settings *config.Settings
	logger   *zap.Logger
	store    *store.SQLiteStore
	platform *gitlab.Adapter
}

func newApp(g globalFlags) (*app, error) {
	if err := config.LoadDotEnv(g.envPath); err != nil {
		return nil, err
	}

	settings, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	dbPath := settings.Database.Path
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	st, err := store.NewSQLiteStore(dbPath, store.WithDedupRetention(settings.DedupRetention))
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", dbPath, err)
	}

	return &app{
		settings: settings,
		logger:   logger,
		store:    st,
		platform: gitlab.NewAdapter(settings.GitLab.URL, settings.GitLab.Token, settings.GitLab.RequestTimeout),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.logger.Sync()
}

// newSink builds the configured sink. Credentials are checked by
// Settings.Ready, not here.
func newSink(s *config.Settings) (sink.Sink, error) {
	switch s.Sink.Kind {
	case config.SinkTelegram:
		return telegram.NewClient(s.Telegram.APIURL, s.Telegram.BotToken, s.Telegram.ChatID, s.Sink.Timeout), nil
	case config.SinkFeishu:
		return feishu.NewClient(s.Feishu.AppID, s.Feishu.AppSecret, s.Feishu.ChatID), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", s.Sink.Kind)
	}
}
