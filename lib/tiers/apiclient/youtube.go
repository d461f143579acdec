package apiclient

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"socialkpi-backend/lib/kpi"
)

type youtubeChannelList struct {
	Items []struct {
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
			ViewCount       string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// youtubeChannel resolves the channel via the Data API v3 and maps its
// lifetime statistics: subscribers, video count, and views averaged
// over uploads.
func (e *Engine) youtubeChannel(ctx context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
	if e.creds.YouTubeAPIKey == "" {
		return nil, kpi.Errorf(kpi.KindUnavailable, req.Platform, "no youtube API key configured")
	}
	handle, err := handleFromURL(req.ProfileURL)
	if err != nil {
		return nil, kpi.NewError(kpi.KindParseError, req.Platform, err)
	}

	res, err := e.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":      "statistics",
			"forHandle": handle,
			"key":       e.creds.YouTubeAPIKey,
		}).
		Get("https://www.googleapis.com/youtube/v3/channels")
	if cerr := classify(req.Platform, res, err); cerr != nil {
		return nil, cerr
	}

	var payload youtubeChannelList
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		return nil, kpi.NewError(kpi.KindParseError, req.Platform, err)
	}
	if len(payload.Items) == 0 {
		return nil, kpi.Errorf(kpi.KindParseError, req.Platform, "channel %q not found", handle)
	}

	stats := payload.Items[0].Statistics
	subscribers, err := strconv.ParseInt(stats.SubscriberCount, 10, 64)
	if err != nil {
		return nil, kpi.NewError(kpi.KindParseError, req.Platform, err)
	}
	videos, _ := strconv.ParseInt(stats.VideoCount, 10, 64)
	views, _ := strconv.ParseInt(stats.ViewCount, 10, 64)

	engagement := kpi.EngagementMetrics{}
	if videos > 0 {
		engagement.AvgViews = kpi.Count(views / videos)
	}

	return &kpi.ExtractionResult{
		Platform:   req.Platform,
		Followers:  subscribers,
		Posts:      videos,
		Engagement: kpi.ComputeEngagement(subscribers, engagement),
		TierUsed:   kpi.TierAPI,
		FetchedAt:  time.Now(),
		Confidence: kpi.ConfidenceHigh,
	}, nil
}
