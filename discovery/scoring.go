package discovery

import "context"

// neutralScore is stored when the scorer fails for a candidate. Keeping the
// candidate with a neutral score beats dropping it.
const neutralScore = 0.5

// extractTopics derives topics from the query text, degrading to the whole
// text as a single topic when the extractor is missing, fails, or returns
// nothing. Provider errors never leave this function.
func (svc *Service) extractTopics(ctx context.Context, text string) []string {
	if svc.topics == nil {
		return []string{text}
	}
	topics, err := svc.topics.ExtractTopics(ctx, text)
	if err != nil {
		svc.logger.Warn("discovery: topic extraction failed, using raw text",
			"error", err)
		return []string{text}
	}
	if len(topics) == 0 {
		return []string{text}
	}
	return topics
}

// scoreCandidate rates one candidate, degrading to the neutral score when
// the scorer is missing or fails. The result is always in [0,1].
func (svc *Service) scoreCandidate(ctx context.Context, name, description string, topics []string) float64 {
	if svc.scorer == nil {
		return neutralScore
	}
	score, err := svc.scorer.Score(ctx, name, description, topics)
	if err != nil {
		svc.logger.Warn("discovery: scoring failed, using neutral score",
			"community", name, "error", err)
		return neutralScore
	}
	return clampScore(score)
}

// clampScore forces a provider-returned score into [0,1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
