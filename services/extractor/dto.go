package extractor

import (
	"time"

	"socialkpi-backend/lib/kpi"
)

// ResultDTO renders a result with platform-adapted field names: youtube
// counts videos, twitter counts tweets, everything else counts posts.
// The website pseudo-platform carries only page metadata.
func ResultDTO(result *kpi.ExtractionResult) map[string]any {
	if result.Platform == kpi.Website {
		dto := map[string]any{
			"tierUsed":   result.TierUsed.String(),
			"confidence": string(result.Confidence),
			"fetchedAt":  result.FetchedAt.UTC().Format(time.RFC3339),
		}
		if result.Site != nil {
			dto["title"] = result.Site.Title
			dto["description"] = result.Site.Description
		}
		return dto
	}

	dto := map[string]any{
		"followers":       result.Followers,
		postsKey(result.Platform): result.Posts,
		"totalEngagement": result.Engagement.TotalEngagement,
		"tierUsed":        result.TierUsed.String(),
		"confidence":      string(result.Confidence),
		"fetchedAt":       result.FetchedAt.UTC().Format(time.RFC3339),
	}
	if result.Engagement.EngagementRate != nil {
		dto["engagementRate"] = *result.Engagement.EngagementRate
	}
	putCount(dto, "avgLikes", result.Engagement.AvgLikes)
	putCount(dto, "avgComments", result.Engagement.AvgComments)
	putCount(dto, "avgRetweets", result.Engagement.AvgRetweets)
	putCount(dto, "avgShares", result.Engagement.AvgShares)
	putCount(dto, "avgViews", result.Engagement.AvgViews)
	return dto
}

func postsKey(platform kpi.Platform) string {
	switch platform {
	case kpi.YouTube:
		return "videos"
	case kpi.Twitter:
		return "tweets"
	default:
		return "posts"
	}
}

func putCount(dto map[string]any, key string, n *int64) {
	if n != nil {
		dto[key] = *n
	}
}
