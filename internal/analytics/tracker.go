package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/Shanbot/internal/util"
)

// DefaultFileName is the analytics file name inside the state directory.
const DefaultFileName = "analytics_data.json"

// Tracker owns the in-memory analytics state for one process.
// Every method is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	exportMu sync.Mutex
	path     string
	rules    *Rules
	now      func() time.Time
	state    *State
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRules overrides the classifier rules (e.g. a custom signup URL).
func WithRules(r *Rules) Option {
	return func(t *Tracker) { t.rules = r }
}

// WithClock overrides the clock used for last_updated stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker bound to path. Call Load to read existing data.
func NewTracker(path string, opts ...Option) *Tracker {
	t := &Tracker{
		path:  path,
		rules: defaultRules,
		now:   time.Now,
		state: newState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the analytics file the tracker persists to.
func (t *Tracker) Path() string { return t.path }

// GetOrCreate returns a copy of the subscriber's record, creating it on first sight.
func (t *Tracker) GetOrCreate(subscriberID string) Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getOrCreateLocked(subscriberID).clone()
}

func (t *Tracker) getOrCreateLocked(subscriberID string) *Conversation {
	if conv, ok := t.state.Conversations[subscriberID]; ok {
		return conv
	}
	conv := &Conversation{
		Metadata: Metadata{
			SubscriberID:      subscriberID,
			FirstSeen:         util.FormatTimestamp(t.now()),
			ResponderCategory: CategoryNoResponder,
		},
	}
	t.state.Conversations[subscriberID] = conv
	t.state.GlobalMetrics.TotalConversations++
	slog.Debug("Tracker.GetOrCreate: new conversation", "subscriberID", subscriberID)
	return conv
}

// RecordMessage classifies msg into the subscriber's record and mirrors the delta globally.
// If the timestamp is malformed the message is still appended to history with the raw
// timestamp, no counters change, and the parse error is returned.
func (t *Tracker) RecordMessage(subscriberID string, msg Message) (Delta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conv := t.getOrCreateLocked(subscriberID)
	delta, err := t.rules.Classify(conv, msg)
	if err != nil {
		msgType := MessageTypeUser
		if msg.IsAI() {
			msgType = MessageTypeAI
		}
		conv.Metrics.ConversationHistory = append(conv.Metrics.ConversationHistory,
			HistoryEntry{Timestamp: msg.Timestamp, Type: msgType, Text: msg.Text})
		slog.Warn("Tracker.RecordMessage: skipping classification", "subscriberID", subscriberID, "error", err)
		return Delta{}, fmt.Errorf("classify message for %s: %w", subscriberID, err)
	}
	t.applyDeltaLocked(delta)
	slog.Debug("Tracker.RecordMessage: classified", "subscriberID", subscriberID, "type", msg.Type,
		"total", conv.Metrics.TotalMessages, "newSignup", delta.NewSignup)
	return delta, nil
}

func (t *Tracker) applyDeltaLocked(d Delta) {
	g := &t.state.GlobalMetrics
	g.TotalMessages += d.UserMessages + d.AIMessages
	g.TotalUserMessages += d.UserMessages
	g.TotalAIMessages += d.AIMessages
	g.AIQuestionsAsked += d.AIQuestions
	g.AIStatements += d.AIStatements
	g.UserResponsesToQuestions += d.ResponsesToQuestion
	g.CoachingInquiries += d.CoachingInquiries
	if d.NewSession {
		g.TotalSessions++
	}
	if d.NewOfferMention {
		g.OfferMentions++
	}
	if d.NewLinkSent {
		g.LinksSent++
	}
	if d.NewSignup {
		g.TotalSignups++
	}
	g.recomputeRates()
	g.LastUpdated = util.FormatTimestamp(t.now())
}

// Snapshot returns a copy of the subscriber's record without creating it.
func (t *Tracker) Snapshot(subscriberID string) (Conversation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conv, ok := t.state.Conversations[subscriberID]
	if !ok {
		return Conversation{}, false
	}
	out := conv.clone()
	out.Metadata.ResponderCategory = ResponderCategory(out.Metrics.UserMessages)
	return out, true
}

// Global returns a copy of the global metrics.
func (t *Tracker) Global() GlobalMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.GlobalMetrics
}

// Conversations returns copies of every record ordered by subscriber ID.
func (t *Tracker) Conversations() []Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.state.Conversations))
	for id := range t.state.Conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Conversation, 0, len(ids))
	for _, id := range ids {
		c := t.state.Conversations[id].clone()
		c.Metadata.ResponderCategory = ResponderCategory(c.Metrics.UserMessages)
		out = append(out, c)
	}
	return out
}

// Load replaces the in-memory state with the contents of path.
// A missing file yields an empty state. A corrupt file also yields an empty
// state but returns an error wrapping ErrCorruptState.
func (t *Tracker) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Tracker.Load: no analytics file yet, starting empty", "path", path)
		t.replaceState(newState())
		return nil
	}
	if err != nil {
		slog.Error("Tracker.Load: read failed", "path", path, "error", err)
		return &PersistenceError{Op: "load", Path: path, Err: err}
	}

	st := newState()
	if err := json.Unmarshal(data, st); err != nil {
		slog.Error("Tracker.Load: invalid JSON, starting from empty state", "path", path, "error", err)
		t.replaceState(newState())
		return &PersistenceError{Op: "load", Path: path, Err: fmt.Errorf("%w: %v", ErrCorruptState, err)}
	}
	if st.Conversations == nil {
		st.Conversations = make(map[string]*Conversation)
	}
	for id, conv := range st.Conversations {
		if conv == nil {
			delete(st.Conversations, id)
			continue
		}
		conv.Metadata.SubscriberID = id
		conv.Metadata.ResponderCategory = ResponderCategory(conv.Metrics.UserMessages)
	}
	t.replaceState(st)
	slog.Info("Tracker.Load: analytics loaded", "path", path, "conversations", len(st.Conversations))
	return nil
}

func (t *Tracker) replaceState(st *State) {
	t.mu.Lock()
	t.state = st
	t.mu.Unlock()
}

// Save exports to the tracker's own path.
func (t *Tracker) Save() error {
	return t.Export(t.path)
}

// Export merges the in-memory state with whatever is on disk and atomically
// replaces the file. Memory is never modified; a failed export loses nothing.
func (t *Tracker) Export(path string) error {
	t.exportMu.Lock()
	defer t.exportMu.Unlock()

	t.mu.Lock()
	for _, conv := range t.state.Conversations {
		conv.Metadata.ResponderCategory = ResponderCategory(conv.Metrics.UserMessages)
	}
	memJSON, err := json.Marshal(t.state)
	t.mu.Unlock()
	if err != nil {
		return &PersistenceError{Op: "export", Path: path, Err: err}
	}

	memDoc, err := decodeDocument(memJSON)
	if err != nil {
		return &PersistenceError{Op: "export", Path: path, Err: err}
	}

	merged := memDoc
	if diskDoc, err := readDocument(path); err != nil {
		slog.Warn("Tracker.Export: could not read existing file, exporting memory only", "path", path, "error", err)
	} else if diskDoc != nil {
		merged = mergeDocuments(diskDoc, memDoc)
	}
	refreshDerived(merged)

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "export", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, out); err != nil {
		slog.Error("Tracker.Export: write failed, keeping in-memory state", "path", path, "error", err)
		return &PersistenceError{Op: "export", Path: path, Err: err}
	}
	slog.Debug("Tracker.Export: analytics written", "path", path, "bytes", len(out))
	return nil
}
