package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/bot"
	"github.com/BTreeMap/Shanbot/internal/config"
	"github.com/BTreeMap/Shanbot/internal/dispatcher"
	"github.com/BTreeMap/Shanbot/internal/genai"
	"github.com/BTreeMap/Shanbot/internal/lockfile"
	"github.com/BTreeMap/Shanbot/internal/messaging"
	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/persona"
	"github.com/BTreeMap/Shanbot/internal/scheduler"
	"github.com/BTreeMap/Shanbot/internal/store"
)

// app holds the modules shared by every long-running subcommand.
type app struct {
	cfg     *config.Config
	store   store.Store
	tracker *analytics.Tracker
	planner *scheduler.Planner
	engine  *bot.Engine
	replies messaging.Service
}

// bootstrap opens storage, loads analytics and wires the reply pipeline.
// Optional integrations that are not configured are logged and left out.
func bootstrap(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracker := analytics.NewTracker(cfg.AnalyticsFile, analytics.WithRules(analytics.NewRules(cfg.Bot.SignupURL)))
	if err := tracker.Load(cfg.AnalyticsFile); err != nil {
		if !errors.Is(err, analytics.ErrCorruptState) {
			st.Close()
			return nil, fmt.Errorf("load analytics: %w", err)
		}
		slog.Warn("bootstrap: analytics file is corrupt, starting from empty state", "path", cfg.AnalyticsFile, "error", err)
	}

	policy := scheduler.DefaultDelayPolicy()
	policy.Min = cfg.Bot.MinReplyDelay
	policy.Max = cfg.Bot.MaxReplyDelay
	planner := scheduler.NewPlanner(tracker, st, scheduler.WithPolicy(policy))

	templates, err := persona.LoadTemplates(cfg.PersonaDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	renderer, err := persona.NewRenderer(templates)
	if err != nil {
		st.Close()
		return nil, err
	}

	engineOpts := []bot.Option{
		bot.WithBotName(cfg.Bot.Name),
		bot.WithSignupURL(cfg.Bot.SignupURL),
		bot.WithAutoMode(cfg.Bot.AutoMode),
	}
	if gen, err := newGenerator(cfg.Gemini); err != nil {
		slog.Warn("bootstrap: AI replies disabled, using persona fallback", "error", err)
	} else {
		engineOpts = append(engineOpts, bot.WithGenerator(gen))
	}
	if cfg.Twilio.Enabled() {
		notifier, err := messaging.NewTwilioNotifier(messaging.TwilioOpts{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.FromNumber,
			To:         cfg.Twilio.CoachNumber,
		})
		if err != nil {
			slog.Warn("bootstrap: coach alerts disabled", "error", err)
		} else {
			engineOpts = append(engineOpts, bot.WithNotifier(notifier))
		}
	}

	a := &app{
		cfg:     cfg,
		store:   st,
		tracker: tracker,
		planner: planner,
		engine:  bot.NewEngine(tracker, st, planner, renderer, engineOpts...),
	}

	var manyOpts []messaging.ManyChatOption
	if cfg.ManyChat.BaseURL != "" {
		manyOpts = append(manyOpts, messaging.WithManyChatBaseURL(cfg.ManyChat.BaseURL))
	}
	if svc, err := messaging.NewManyChatService(cfg.ManyChat.APIKey, manyOpts...); err != nil {
		slog.Warn("bootstrap: ManyChat delivery disabled", "error", err)
	} else {
		a.replies = svc
	}
	return a, nil
}

func newGenerator(g config.GeminiConfig) (*genai.Client, error) {
	opts := []genai.Option{genai.WithAPIKey(g.APIKey)}
	if g.Model != "" {
		opts = append(opts, genai.WithModel(g.Model))
	}
	if g.BaseURL != "" {
		opts = append(opts, genai.WithBaseURL(g.BaseURL))
	}
	return genai.NewClient(opts...)
}

// newDispatcher builds the delivery loop. It needs ManyChat credentials.
func (a *app) newDispatcher() (*dispatcher.Dispatcher, error) {
	if a.replies == nil {
		return nil, fmt.Errorf("dispatcher: %w: set MANYCHAT_API_KEY", messaging.ErrNotConfigured)
	}
	send := func(ctx context.Context, rec models.ScheduledResponse) error {
		return a.replies.SendReply(ctx, messaging.Reply{
			SubscriberID: rec.UserSubscriberID,
			IGUsername:   rec.UserIGUsername,
			Text:         rec.ResponseText,
		})
	}
	return dispatcher.New(a.store, a.store, send,
		dispatcher.WithPollInterval(a.cfg.Dispatch.Interval),
		dispatcher.WithBatchLimit(a.cfg.Dispatch.BatchLimit),
		dispatcher.WithAfterSend(a.engine.RecordSent),
	), nil
}

// exportLocked merges the tracker into the analytics file under export.lock so merges from
// processes sharing a state dir never interleave. A held lock returns *lockfile.LockError.
func (a *app) exportLocked() error {
	lock, err := lockfile.AcquireLock(a.cfg.StateDir, lockfile.ExportLock)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("app.exportLocked: lock release failed", "error", err)
		}
	}()
	if err := a.tracker.Save(); err != nil {
		return err
	}
	slog.Debug("app.exportLocked: analytics exported", "path", a.tracker.Path())
	return nil
}

// exportAnalytics is the periodic and shutdown export; a held lock skips this run.
func (a *app) exportAnalytics() error {
	err := a.exportLocked()
	var held *lockfile.LockError
	if errors.As(err, &held) {
		slog.Info("app.exportAnalytics: another process is exporting, skipping", "holder", held.Holder)
		return nil
	}
	return err
}

// startExportJob runs exportAnalytics on the configured cron expression.
func (a *app) startExportJob() (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	err := sched.AddJob("analytics-export", a.cfg.ExportCron, func() {
		if err := a.exportAnalytics(); err != nil {
			slog.Error("app.exportJob: export failed", "error", err)
		}
	})
	if err != nil {
		sched.Stop()
		return nil, err
	}
	return sched, nil
}

// close flushes analytics one last time and closes storage.
func (a *app) close() {
	if err := a.exportAnalytics(); err != nil {
		slog.Error("app.close: final analytics export failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("app.close: store close failed", "error", err)
	}
}
