package analytics

// Responder categories, ordered by engagement.
const (
	CategoryNoResponder     = "No Responder"
	CategoryLowResponder    = "Low Responder"
	CategoryMediumResponder = "Medium Responder"
	CategoryHighResponder   = "High Responder"
)

// ResponderCategory buckets a cumulative user-message count. Negative counts are treated as zero.
func ResponderCategory(userMessages int) string {
	switch {
	case userMessages <= 0:
		return CategoryNoResponder
	case userMessages <= 10:
		return CategoryLowResponder
	case userMessages <= 50:
		return CategoryMediumResponder
	default:
		return CategoryHighResponder
	}
}
