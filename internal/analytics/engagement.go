package analytics

// Engagement summarises how a subscriber interacts with the bot.
type Engagement struct {
	SubscriberID          string   `json:"subscriber_id"`
	IGUsername            string   `json:"ig_username,omitempty"`
	ResponderCategory     string   `json:"responder_category"`
	TotalMessages         int      `json:"total_messages"`
	UserMessages          int      `json:"user_messages"`
	AIMessages            int      `json:"ai_messages"`
	ConversationCount     int      `json:"conversation_count"`
	QuestionResponseRate  float64  `json:"question_response_rate"`
	TypicalResponseBucket string   `json:"typical_response_bucket,omitempty"`
	Topics                []string `json:"topics"`
	Milestones            []int    `json:"milestones"`
	CoachingInquiries     int      `json:"coaching_inquiries"`
	OfferMentioned        bool     `json:"offer_mentioned"`
	LinkSent              bool     `json:"link_sent"`
	SignedUp              bool     `json:"signed_up"`
	LastSeen              string   `json:"last_seen,omitempty"`
}

// EngagementOf derives the engagement summary from a record.
func EngagementOf(c Conversation) Engagement {
	m := c.Metrics
	e := Engagement{
		SubscriberID:          c.Metadata.SubscriberID,
		IGUsername:            c.Metadata.IGUsername,
		ResponderCategory:     ResponderCategory(m.UserMessages),
		TotalMessages:         m.TotalMessages,
		UserMessages:          m.UserMessages,
		AIMessages:            m.AIMessages,
		ConversationCount:     m.ConversationCount,
		TypicalResponseBucket: TypicalResponseBucket(m.ConversationHistory),
		Topics:                []string{},
		Milestones:            append([]int{}, m.AchievedMessageMilestones...),
		CoachingInquiries:     m.CoachingInquiryCount,
		OfferMentioned:        m.OfferMentionedInConv,
		LinkSent:              m.LinkSentInConv,
		SignedUp:              m.SignupRecorded,
		LastSeen:              m.LastSeenTimestamp,
	}
	if m.AIQuestions > 0 {
		e.QuestionResponseRate = float64(m.UserResponsesToAIQuestion) / float64(m.AIQuestions)
	}
	if m.FitnessTopicMentioned {
		e.Topics = append(e.Topics, "fitness")
	}
	if m.VeganTopicMentioned {
		e.Topics = append(e.Topics, "vegan")
	}
	if m.WeightLossMentioned {
		e.Topics = append(e.Topics, "weight_loss")
	}
	if m.MuscleGainMentioned {
		e.Topics = append(e.Topics, "muscle_gain")
	}
	return e
}

// Engagement returns the engagement summary for a subscriber, if known.
func (t *Tracker) Engagement(subscriberID string) (Engagement, bool) {
	conv, ok := t.Snapshot(subscriberID)
	if !ok {
		return Engagement{}, false
	}
	return EngagementOf(conv), true
}
