package ai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/infra/metrics"
)

var _ adapter.Recommender = (*ChatRecommender)(nil)

const recommendSystemPrompt = `You generate cost-savings recommendations for shop invoices.
Respond with ONLY a JSON array. Each element:
{"type": string, "title": string, "description": string,
 "savings_range": {"min": number, "max": number},
 "savings_percent_range": {"min": number, "max": number},
 "confidence": number, "evidence": [string], "action_steps": [string],
 "estimated_time_to_implement": string}
Return [] when you have nothing actionable.`

// ChatRecommender produces savings recommendations. Per contract it never
// fails: provider errors and malformed responses degrade to an empty list.
type ChatRecommender struct {
	provider FileChatProvider
	log      *zerolog.Logger
}

func NewChatRecommender(provider FileChatProvider, logger *zerolog.Logger) *ChatRecommender {
	l := logger.With().Str("component", "ChatRecommender").Logger()
	return &ChatRecommender{provider: provider, log: &l}
}

func (r *ChatRecommender) Recommend(ctx context.Context, supplierName string, items []model.LineItem, totals model.Totals) []model.Recommendation {
	start := time.Now()
	reply, err := r.provider.Chat(ctx, recommendSystemPrompt, classifyPrompt(supplierName, items, nil, totals))
	metrics.ObserveAICall("recommend", r.provider.Name(), int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		r.log.Warn().Err(err).Msg("recommendation engine degraded to empty list")
		return []model.Recommendation{}
	}
	return ParseRecommendations(reply)
}

// ParseRecommendations leniently decodes a free-text model response into
// validated recommendations: code fences are stripped, the first array
// literal is located, entries missing type/title/description are dropped,
// and the legacy potential-savings figure is derived from the range.
func ParseRecommendations(reply string) []model.Recommendation {
	arr, ok := firstJSONArray(reply)
	if !ok {
		return []model.Recommendation{}
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		return []model.Recommendation{}
	}

	out := make([]model.Recommendation, 0, len(raw))
	for _, m := range raw {
		rec := model.Recommendation{
			Type:        asString(m["type"]),
			Title:       asString(m["title"]),
			Description: asString(m["description"]),
			Confidence:  asFloat(m["confidence"]),
			Evidence:    asStringSlice(m["evidence"]),
			ActionSteps: asStringSlice(m["action_steps"]),
		}
		if rec.Type == "" || rec.Title == "" || rec.Description == "" {
			continue
		}
		rec.EstimatedTime = asString(m["estimated_time_to_implement"])
		rec.SavingsRange = asRange(m["savings_range"])
		rec.SavingsPercentRange = asRange(m["savings_percent_range"])
		if rec.SavingsRange != nil {
			rec.PotentialSavings = (rec.SavingsRange.Min + rec.SavingsRange.Max) / 2
		} else {
			rec.PotentialSavings = asFloat(m["potential_savings"])
		}
		out = append(out, rec)
	}
	return out
}

func asRange(v interface{}) *model.SavingsRange {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	sr := &model.SavingsRange{Min: asFloat(m["min"]), Max: asFloat(m["max"])}
	if sr.Min == 0 && sr.Max == 0 {
		return nil
	}
	if sr.Max < sr.Min {
		sr.Min, sr.Max = sr.Max, sr.Min
	}
	return sr
}
