// Package bot turns inbound ManyChat webhooks into recorded analytics, generated replies and
// either scheduled deliveries or coach review items.
package bot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/genai"
	"github.com/BTreeMap/Shanbot/internal/messaging"
	"github.com/BTreeMap/Shanbot/internal/models"
	"github.com/BTreeMap/Shanbot/internal/persona"
	"github.com/BTreeMap/Shanbot/internal/scheduler"
	"github.com/BTreeMap/Shanbot/internal/store"
	"github.com/BTreeMap/Shanbot/internal/util"
)

// Reply modes reported in webhook results.
const (
	ModeAuto     = "auto"
	ModeReview   = "review"
	ModeRecorded = "recorded"
)

// historyLimit is how many stored messages are shown to the model.
const historyLimit = 12

// Generator produces an AI reply. *genai.Client implements it.
type Generator interface {
	GenerateReply(ctx context.Context, p genai.Prompt) (string, error)
}

// Engine owns the inbound message pipeline.
type Engine struct {
	tracker  *analytics.Tracker
	store    store.Store
	planner  *scheduler.Planner
	gen      Generator
	persona  *persona.Renderer
	notifier messaging.Notifier

	botName   string
	signupURL string
	autoMode  bool
	now       func() time.Time

	// reviewMu serialises review decisions so a review is scheduled at most once.
	reviewMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithGenerator sets the AI reply generator. Without one every reply is the fallback template.
func WithGenerator(g Generator) Option { return func(e *Engine) { e.gen = g } }

// WithNotifier sets who is alerted when a reply needs review.
func WithNotifier(n messaging.Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithBotName sets the name that prefixes bot lines in the CONVERSATION field.
func WithBotName(name string) Option { return func(e *Engine) { e.botName = name } }

// WithSignupURL sets the onboarding link offered to interested leads.
func WithSignupURL(u string) Option { return func(e *Engine) { e.signupURL = u } }

// WithAutoMode schedules replies directly instead of queueing them for review.
func WithAutoMode(on bool) Option { return func(e *Engine) { e.autoMode = on } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine wires the pipeline. tracker, st, planner and renderer are required.
func NewEngine(tracker *analytics.Tracker, st store.Store, planner *scheduler.Planner, renderer *persona.Renderer, opts ...Option) *Engine {
	e := &Engine{
		tracker: tracker,
		store:   st,
		planner: planner,
		persona: renderer,
		botName: "Shannon",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AutoMode reports whether replies skip review.
func (e *Engine) AutoMode() bool { return e.autoMode }

// Tracker returns the analytics tracker.
func (e *Engine) Tracker() *analytics.Tracker { return e.tracker }

// InboundKey is the dedup key of a webhook delivery. The whole CONVERSATION field is hashed
// because it grows with every turn, so a repeated short message still gets a new key.
func InboundKey(w models.ManyChatWebhook) string {
	sum := sha256.Sum256([]byte(w.ID + "|" + w.Timestamp + "|" + w.CustomFields.Conversation))
	return hex.EncodeToString(sum[:])
}

// ParsedLine is the newest line of a CONVERSATION field.
type ParsedLine struct {
	Type string
	Text string
}

// ParseLastLine returns the last non-empty line of conversation. A line starting with
// "<botName>:" is an AI message; otherwise a "User:", "<username>:" or "@<username>:" prefix is
// stripped and the line is a user message.
func ParseLastLine(conversation, botName, igUsername string) (ParsedLine, bool) {
	lines := strings.Split(strings.ReplaceAll(conversation, "\r\n", "\n"), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			last = l
			break
		}
	}
	if last == "" {
		return ParsedLine{}, false
	}

	if text, ok := cutSpeaker(last, botName); ok {
		return ParsedLine{Type: analytics.MessageTypeAI, Text: text}, true
	}
	user := strings.TrimPrefix(igUsername, "@")
	for _, speaker := range []string{"User", user, "@" + user} {
		if text, ok := cutSpeaker(last, speaker); ok {
			return ParsedLine{Type: analytics.MessageTypeUser, Text: text}, true
		}
	}
	return ParsedLine{Type: analytics.MessageTypeUser, Text: last}, true
}

func cutSpeaker(line, speaker string) (string, bool) {
	if speaker == "" || speaker == "@" {
		return "", false
	}
	if len(line) <= len(speaker) || !strings.EqualFold(line[:len(speaker)], speaker) {
		return "", false
	}
	rest, ok := strings.CutPrefix(line[len(speaker):], ":")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// HandleWebhook records one inbound DM and, for user messages, produces a reply.
// Redelivered webhooks are acknowledged with Duplicate set and change nothing.
func (e *Engine) HandleWebhook(ctx context.Context, w models.ManyChatWebhook) (models.WebhookResult, error) {
	if err := w.Validate(); err != nil {
		return models.WebhookResult{}, err
	}
	igUsername := strings.TrimPrefix(strings.TrimSpace(w.CustomFields.InstagramUsername), "@")
	line, ok := ParseLastLine(w.CustomFields.Conversation, e.botName, igUsername)
	if !ok {
		return models.WebhookResult{}, models.ErrEmptyConversation
	}

	key := InboundKey(w)
	fresh, err := e.store.RecordInbound(key, w.ID)
	if err != nil {
		slog.Error("Engine.HandleWebhook: dedup check failed", "subscriberID", w.ID, "error", err)
		return models.WebhookResult{}, fmt.Errorf("record inbound: %w", err)
	}
	if !fresh {
		slog.Info("Engine.HandleWebhook: duplicate webhook ignored", "subscriberID", w.ID)
		return models.WebhookResult{Mode: ModeRecorded, MessageType: line.Type, Duplicate: true}, nil
	}

	receivedAt := e.now().UTC()
	timestamp := w.Timestamp
	if timestamp == "" {
		timestamp = util.FormatTimestamp(receivedAt)
	}
	incomingAt, err := util.ParseTimestamp(timestamp)
	if err != nil {
		slog.Warn("Engine.HandleWebhook: bad webhook timestamp, using receipt time", "subscriberID", w.ID, "timestamp", timestamp)
		incomingAt = receivedAt
	}

	e.record(w.ID, igUsername, line.Type, line.Text, timestamp, incomingAt)

	result := models.WebhookResult{Mode: ModeRecorded, MessageType: line.Type}
	if line.Type == analytics.MessageTypeUser {
		reply := e.generateReply(ctx, w.ID, igUsername, line.Text)
		if e.autoMode {
			result, err = e.scheduleReply(w.ID, igUsername, line.Text, incomingAt, reply)
		} else {
			result, err = e.queueReview(ctx, w.ID, igUsername, line.Text, incomingAt, reply)
		}
		if err != nil {
			return result, err
		}
	}

	if err := e.store.MarkProcessed(key); err != nil {
		slog.Warn("Engine.HandleWebhook: mark processed failed", "subscriberID", w.ID, "error", err)
	}
	return result, nil
}

// record feeds analytics and the relational message log. Failures are logged, not returned:
// a broken log must not cost the lead a reply.
func (e *Engine) record(subscriberID, igUsername, msgType, text, timestamp string, at time.Time) {
	msg := analytics.Message{Text: text, Type: msgType, Timestamp: timestamp, IGUsername: igUsername}
	if _, err := e.tracker.RecordMessage(subscriberID, msg); err != nil {
		slog.Warn("Engine.record: analytics classification skipped", "subscriberID", subscriberID, "error", err)
	}
	if _, err := e.store.SaveMessage(models.StoredMessage{
		SubscriberID: subscriberID, IGUsername: igUsername, Type: msgType, Text: text, Timestamp: at,
	}); err != nil {
		slog.Error("Engine.record: save message failed", "subscriberID", subscriberID, "error", err)
	}
	if msgType == analytics.MessageTypeUser {
		if err := e.store.UpsertUser(subscriberID, igUsername, text, at); err != nil {
			slog.Error("Engine.record: upsert user failed", "subscriberID", subscriberID, "error", err)
		}
	}
}

func (e *Engine) generateReply(ctx context.Context, subscriberID, igUsername, text string) string {
	pc := persona.Context{BotName: e.botName, IGUsername: igUsername, Message: text, SignupURL: e.signupURL}
	if eng, ok := e.tracker.Engagement(subscriberID); ok {
		pc.Engagement = eng
	}
	var turns []genai.Turn
	if msgs, err := e.store.ListMessages(subscriberID, historyLimit+1); err != nil {
		slog.Warn("Engine.generateReply: history unavailable", "subscriberID", subscriberID, "error", err)
	} else {
		// The newest stored message is the one being answered.
		if n := len(msgs); n > 0 && msgs[n-1].Type == analytics.MessageTypeUser && msgs[n-1].Text == text {
			msgs = msgs[:n-1]
		}
		for _, m := range msgs {
			speaker, role := igUsername, genai.RoleUser
			if m.Type == analytics.MessageTypeAI {
				speaker, role = e.botName, genai.RoleAI
			}
			if speaker == "" {
				speaker = "User"
			}
			pc.History = append(pc.History, persona.Line{Speaker: speaker, Text: m.Text})
			turns = append(turns, genai.Turn{Role: role, Text: m.Text})
		}
	}

	if e.gen != nil {
		system, serr := e.persona.SystemPrompt(pc)
		user, uerr := e.persona.UserPrompt(pc)
		if err := errors.Join(serr, uerr); err != nil {
			slog.Error("Engine.generateReply: prompt render failed", "subscriberID", subscriberID, "error", err)
		} else {
			reply, err := e.gen.GenerateReply(ctx, genai.Prompt{System: system, History: turns, User: user})
			if err == nil {
				return truncateUTF8(reply, models.MaxResponseLength)
			}
			slog.Warn("Engine.generateReply: using fallback reply", "subscriberID", subscriberID, "error", err)
		}
	}
	return truncateUTF8(e.persona.Fallback(pc), models.MaxResponseLength)
}

func (e *Engine) scheduleReply(subscriberID, igUsername, incomingText string, incomingAt time.Time, reply string) (models.WebhookResult, error) {
	minutes, err := e.planner.ComputeDelay(util.FormatTimestamp(incomingAt), subscriberID)
	if err != nil {
		return models.WebhookResult{}, err
	}
	id, err := e.planner.Schedule(models.ScheduledResponse{
		UserIGUsername:           igUsername,
		UserSubscriberID:         subscriberID,
		ResponseText:             reply,
		IncomingMessageText:      incomingText,
		IncomingMessageTimestamp: incomingAt,
		CalculatedDelayMinutes:   minutes,
	})
	if err != nil {
		return models.WebhookResult{}, fmt.Errorf("schedule reply: %w", err)
	}
	return models.WebhookResult{Mode: ModeAuto, MessageType: analytics.MessageTypeUser, ScheduleID: id, DelayMinutes: minutes}, nil
}

func (e *Engine) queueReview(ctx context.Context, subscriberID, igUsername, incomingText string, incomingAt time.Time, reply string) (models.WebhookResult, error) {
	reviewID, err := e.store.CreateReview(models.PendingReview{
		SubscriberID:             subscriberID,
		IGUsername:               igUsername,
		IncomingMessageText:      incomingText,
		IncomingMessageTimestamp: incomingAt,
		ProposedResponse:         reply,
	})
	if err != nil {
		slog.Error("Engine.queueReview: create review failed", "subscriberID", subscriberID, "error", err)
		return models.WebhookResult{}, fmt.Errorf("queue review: %w", err)
	}
	if e.notifier != nil {
		who := subscriberID
		if igUsername != "" {
			who = "@" + igUsername
		}
		body := fmt.Sprintf("Shanbot: reply for %s waiting for review (%s). They said: %q", who, reviewID, incomingText)
		if err := e.notifier.Notify(ctx, body); err != nil {
			slog.Warn("Engine.queueReview: coach alert failed", "reviewID", reviewID, "error", err)
		}
	}
	slog.Info("Engine.queueReview: reply queued for review", "reviewID", reviewID, "subscriberID", subscriberID)
	return models.WebhookResult{Mode: ModeReview, MessageType: analytics.MessageTypeUser, ReviewID: reviewID}, nil
}

// RecordSent logs a delivered reply as an AI message. It is the dispatcher's after-send hook.
func (e *Engine) RecordSent(rec models.ScheduledResponse) {
	at := e.now().UTC()
	if rec.SentAt != nil {
		at = rec.SentAt.UTC()
	}
	e.record(rec.UserSubscriberID, rec.UserIGUsername, analytics.MessageTypeAI, rec.ResponseText, util.FormatTimestamp(at), at)
}

// truncateUTF8 cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}
