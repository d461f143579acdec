package apiclient

import (
	"context"
	"encoding/json"
	"time"

	"socialkpi-backend/lib/kpi"
)

type twitterUserPayload struct {
	Data struct {
		PublicMetrics struct {
			FollowersCount int64 `json:"followers_count"`
			TweetCount     int64 `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *Engine) twitterUser(ctx context.Context, req kpi.ExtractionRequest) (*kpi.ExtractionResult, error) {
	if e.creds.TwitterBearerToken == "" {
		return nil, kpi.Errorf(kpi.KindUnavailable, req.Platform, "no twitter bearer token configured")
	}
	handle, err := handleFromURL(req.ProfileURL)
	if err != nil {
		return nil, kpi.NewError(kpi.KindParseError, req.Platform, err)
	}

	res, err := e.client.R().
		SetContext(ctx).
		SetAuthToken(e.creds.TwitterBearerToken).
		SetQueryParam("user.fields", "public_metrics").
		Get("https://api.twitter.com/2/users/by/username/" + handle)
	if cerr := classify(req.Platform, res, err); cerr != nil {
		return nil, cerr
	}

	var payload twitterUserPayload
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		return nil, kpi.NewError(kpi.KindParseError, req.Platform, err)
	}
	if len(payload.Errors) > 0 {
		return nil, kpi.Errorf(kpi.KindParseError, req.Platform, "twitter API: %s", payload.Errors[0].Detail)
	}

	metrics := payload.Data.PublicMetrics
	return &kpi.ExtractionResult{
		Platform:   req.Platform,
		Followers:  metrics.FollowersCount,
		Posts:      metrics.TweetCount,
		Engagement: kpi.ComputeEngagement(metrics.FollowersCount, kpi.EngagementMetrics{}),
		TierUsed:   kpi.TierAPI,
		FetchedAt:  time.Now(),
		Confidence: kpi.ConfidenceHigh,
	}, nil
}
