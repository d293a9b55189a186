package domain

// EnrichmentResult is the typed outcome of one AI analysis call. It is
// consumed once per pipeline run and never persisted verbatim; every field
// except Sentiment may be empty.
type EnrichmentResult struct {
	Sentiment          Sentiment
	Intent             *string
	SuggestedReply     string
	RecommendedAgentID *string
	TicketCategory     *string
}

// HasReply reports whether the AI produced outbound reply text.
func (r *EnrichmentResult) HasReply() bool {
	return r != nil && r.SuggestedReply != ""
}
