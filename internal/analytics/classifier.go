package analytics

import (
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/Shanbot/internal/util"
)

// SessionGap is the silence after which a new message opens a new session.
const SessionGap = 24 * time.Hour

// DefaultSignupURL is the onboarding form the bot links to when closing a lead.
const DefaultSignupURL = "cocospersonaltraining.com/coaching-onboarding-form"

// Message is one DM to classify.
type Message struct {
	Text       string
	Type       string
	Timestamp  string
	IGUsername string
}

// IsAI reports whether the message was written by the bot.
func (m Message) IsAI() bool { return m.Type == MessageTypeAI }

// Delta lists what a single classification added, so callers can mirror it globally.
type Delta struct {
	UserMessages        int
	AIMessages          int
	AIQuestions         int
	AIStatements        int
	ResponsesToQuestion int
	CoachingInquiries   int
	NewSession          bool
	NewOfferMention     bool
	NewLinkSent         bool
	NewSignup           bool
	NewMilestones       []int
}

// Rules holds the keyword sets and patterns used by the classifier.
type Rules struct {
	SignupURL        string
	fitness          *regexp.Regexp
	vegan            *regexp.Regexp
	weightLoss       *regexp.Regexp
	muscleGain       *regexp.Regexp
	coachingPatterns []*regexp.Regexp
	offerPatterns    []*regexp.Regexp
	signupPatterns   []*regexp.Regexp
}

var (
	fitnessKeywords = []string{
		"workout", "workouts", "gym", "training", "exercise", "fitness", "cardio", "lifting",
		"weights", "squat", "squats", "deadlift", "steps", "run", "running", "protein",
	}
	veganKeywords = []string{
		"vegan", "vegetarian", "plant based", "plant-based", "dairy free", "dairy-free",
	}
	weightLossKeywords = []string{
		"weight loss", "lose weight", "losing weight", "fat loss", "cut", "cutting", "slim", "drop kgs",
	}
	muscleGainKeywords = []string{
		"muscle", "muscles", "bulk", "bulking", "gain weight", "build muscle", "hypertrophy", "strength",
	}

	coachingExprs = []string{
		`\bcoach(ing)?\b`,
		`\bhow much\b`,
		`\bpric(e|es|ing)\b`,
		`\bcosts?\b`,
		`\bprogram(me)?s?\b`,
		`\bwork with you\b`,
		`\bonline training\b`,
		`\bmembership\b`,
		`\bsign(ing)?[ -]?up\b`,
	}
	offerExprs = []string{
		`coaching program`,
		`vegan challenge`,
		`28[ -]day`,
		`free trial`,
		`onboarding`,
	}
	signupExprs = []string{
		`\bsigned up\b`,
		`\bjust joined\b`,
		`\bi'?ve joined\b`,
		`\bi joined\b`,
		`\bregistered\b`,
		`\bfilled (out|in) the form\b`,
		`\bcompleted the form\b`,
		`\bpaid\b`,
		`\bpurchased\b`,
	}
)

var defaultRules = NewRules(DefaultSignupURL)

// NewRules builds the classifier rules. An empty signupURL falls back to DefaultSignupURL.
func NewRules(signupURL string) *Rules {
	if signupURL == "" {
		signupURL = DefaultSignupURL
	}
	return &Rules{
		SignupURL:        strings.ToLower(signupURL),
		fitness:          keywordPattern(fitnessKeywords),
		vegan:            keywordPattern(veganKeywords),
		weightLoss:       keywordPattern(weightLossKeywords),
		muscleGain:       keywordPattern(muscleGainKeywords),
		coachingPatterns: compileAll(coachingExprs),
		offerPatterns:    compileAll(offerExprs),
		signupPatterns:   compileAll(signupExprs),
	}
}

func keywordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func compileAll(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Classify applies the default rules. See Rules.Classify.
func Classify(conv *Conversation, msg Message) (Delta, error) {
	return defaultRules.Classify(conv, msg)
}

// Classify updates conv with one message and reports what changed. It performs no I/O.
// A malformed timestamp returns a *util.TimestampParseError and leaves conv untouched.
func (r *Rules) Classify(conv *Conversation, msg Message) (Delta, error) {
	var d Delta
	ts, err := util.ParseTimestamp(msg.Timestamp)
	if err != nil {
		return d, err
	}
	m := &conv.Metrics
	isAI := msg.IsAI()
	msgType := MessageTypeUser
	if isAI {
		msgType = MessageTypeAI
	}
	stamp := util.FormatTimestamp(ts)

	if msg.IGUsername != "" && conv.Metadata.IGUsername != msg.IGUsername {
		conv.Metadata.IGUsername = msg.IGUsername
	}
	if conv.Metadata.FirstSeen == "" {
		conv.Metadata.FirstSeen = stamp
	}

	m.ConversationHistory = append(m.ConversationHistory, HistoryEntry{Timestamp: stamp, Type: msgType, Text: msg.Text})

	if m.LastSeenTimestamp == "" {
		if m.ConversationCount == 0 {
			m.ConversationCount = 1
			d.NewSession = true
		}
	} else if last, err := util.ParseTimestamp(m.LastSeenTimestamp); err == nil && ts.Sub(last) >= SessionGap {
		m.ConversationCount++
		d.NewSession = true
	}
	m.LastSeenTimestamp = stamp

	m.TotalMessages++
	if isAI {
		m.AIMessages++
		d.AIMessages = 1
	} else {
		m.UserMessages++
		d.UserMessages = 1
	}

	switch {
	case !isAI && m.LastMessageWasAIQuestion:
		m.UserResponsesToAIQuestion++
		d.ResponsesToQuestion = 1
		m.LastMessageWasAIQuestion = false
	case isAI && strings.Contains(msg.Text, "?"):
		m.AIQuestions++
		d.AIQuestions = 1
		m.LastMessageWasAIQuestion = true
	case isAI:
		m.AIStatements++
		d.AIStatements = 1
		m.LastMessageWasAIQuestion = false
	default:
		m.LastMessageWasAIQuestion = false
	}

	for _, threshold := range MessageMilestones {
		if m.TotalMessages >= threshold && !conv.HasMilestone(threshold) {
			conv.addMilestone(threshold)
			d.NewMilestones = append(d.NewMilestones, threshold)
		}
	}

	r.detect(conv, msg.Text, isAI, &d)
	conv.Metadata.LastUpdated = stamp
	conv.Metadata.ResponderCategory = ResponderCategory(m.UserMessages)
	return d, nil
}

func (r *Rules) detect(conv *Conversation, text string, isAI bool, d *Delta) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return
	}
	m := &conv.Metrics

	m.FitnessTopicMentioned = m.FitnessTopicMentioned || r.fitness.MatchString(lower)
	m.VeganTopicMentioned = m.VeganTopicMentioned || r.vegan.MatchString(lower)
	m.WeightLossMentioned = m.WeightLossMentioned || r.weightLoss.MatchString(lower)
	m.MuscleGainMentioned = m.MuscleGainMentioned || r.muscleGain.MatchString(lower)

	if isAI {
		linkSent := r.SignupURL != "" && strings.Contains(lower, r.SignupURL)
		if linkSent || matchAny(r.offerPatterns, lower) {
			if !m.OfferMentionedInConv {
				m.OfferMentionedInConv = true
				d.NewOfferMention = true
			}
		}
		if linkSent && !m.LinkSentInConv {
			m.LinkSentInConv = true
			d.NewLinkSent = true
		}
		return
	}

	if matchAny(r.coachingPatterns, lower) {
		m.CoachingInquiryCount++
		d.CoachingInquiries = 1
	}
	if !m.SignupRecorded && matchAny(r.signupPatterns, lower) {
		m.SignupRecorded = true
		d.NewSignup = true
	}
}
