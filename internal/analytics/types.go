// Package analytics tracks per-conversation engagement metrics for Shanbot.
//
// It classifies every inbound and outbound DM, keeps the resulting counters in an
// explicitly owned Tracker, and persists them to a JSON file that several
// processes may share.
package analytics

import "sort"

// Message types recorded in conversation history.
const (
	MessageTypeAI   = "ai"
	MessageTypeUser = "user"
)

// MessageMilestones are the total-message counts worth remembering.
var MessageMilestones = []int{5, 10, 20, 50, 100}

// HistoryEntry is one message in a conversation's append-only history.
type HistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      string `json:"text"`
}

// Metrics holds the counters and flags derived from a conversation.
type Metrics struct {
	TotalMessages             int            `json:"total_messages"`
	UserMessages              int            `json:"user_messages"`
	AIMessages                int            `json:"ai_messages"`
	AIQuestions               int            `json:"ai_questions"`
	AIStatements              int            `json:"ai_statements"`
	UserResponsesToAIQuestion int            `json:"user_responses_to_ai_question"`
	LastMessageWasAIQuestion  bool           `json:"last_message_was_ai_question"`
	AchievedMessageMilestones []int          `json:"achieved_message_milestones"`
	CoachingInquiryCount      int            `json:"coaching_inquiry_count"`
	OfferMentionedInConv      bool           `json:"offer_mentioned_in_conv"`
	LinkSentInConv            bool           `json:"link_sent_in_conv"`
	SignupRecorded            bool           `json:"signup_recorded"`
	FitnessTopicMentioned     bool           `json:"fitness_topic_mentioned"`
	VeganTopicMentioned       bool           `json:"vegan_topic_mentioned"`
	WeightLossMentioned       bool           `json:"weight_loss_mentioned"`
	MuscleGainMentioned       bool           `json:"muscle_gain_mentioned"`
	ConversationCount         int            `json:"conversation_count"`
	LastSeenTimestamp         string         `json:"last_seen_timestamp,omitempty"`
	ConversationHistory       []HistoryEntry `json:"conversation_history"`
}

// Metadata describes who the conversation is with.
type Metadata struct {
	SubscriberID      string `json:"subscriber_id"`
	IGUsername        string `json:"ig_username,omitempty"`
	FirstSeen         string `json:"first_seen,omitempty"`
	LastUpdated       string `json:"last_updated,omitempty"`
	ResponderCategory string `json:"responder_category"`
}

// Conversation is the analytics record for one subscriber.
type Conversation struct {
	Metrics  Metrics  `json:"metrics"`
	Metadata Metadata `json:"metadata"`
}

// HasMilestone reports whether m has been reached.
func (c *Conversation) HasMilestone(m int) bool {
	for _, v := range c.Metrics.AchievedMessageMilestones {
		if v == m {
			return true
		}
	}
	return false
}

func (c *Conversation) addMilestone(m int) {
	c.Metrics.AchievedMessageMilestones = append(c.Metrics.AchievedMessageMilestones, m)
	sort.Ints(c.Metrics.AchievedMessageMilestones)
}

// clone returns a deep copy safe to hand out of the tracker lock.
func (c *Conversation) clone() Conversation {
	out := *c
	out.Metrics.AchievedMessageMilestones = append([]int(nil), c.Metrics.AchievedMessageMilestones...)
	out.Metrics.ConversationHistory = append([]HistoryEntry(nil), c.Metrics.ConversationHistory...)
	return out
}

// GlobalMetrics aggregates every conversation's deltas.
type GlobalMetrics struct {
	TotalConversations       int     `json:"total_conversations"`
	TotalMessages            int     `json:"total_messages"`
	TotalUserMessages        int     `json:"total_user_messages"`
	TotalAIMessages          int     `json:"total_ai_messages"`
	AIQuestionsAsked         int     `json:"ai_questions_asked"`
	AIStatements             int     `json:"ai_statements"`
	UserResponsesToQuestions int     `json:"user_responses_to_questions"`
	QuestionResponseRate     float64 `json:"question_response_rate"`
	CoachingInquiries        int     `json:"coaching_inquiries"`
	OfferMentions            int     `json:"offer_mentions"`
	LinksSent                int     `json:"links_sent"`
	TotalSignups             int     `json:"total_signups"`
	TotalSessions            int     `json:"total_sessions"`
	LastUpdated              string  `json:"last_updated,omitempty"`
}

// State is the on-disk shape of the analytics file.
type State struct {
	GlobalMetrics GlobalMetrics            `json:"global_metrics"`
	Conversations map[string]*Conversation `json:"conversations"`
}

func newState() *State {
	return &State{Conversations: make(map[string]*Conversation)}
}

func (g *GlobalMetrics) recomputeRates() {
	if g.AIQuestionsAsked > 0 {
		g.QuestionResponseRate = float64(g.UserResponsesToQuestions) / float64(g.AIQuestionsAsked)
	} else {
		g.QuestionResponseRate = 0
	}
}
