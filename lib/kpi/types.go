// Package kpi holds the shared data model for social KPI extraction:
// platforms, extraction requests/results, engagement math, and the
// error taxonomy the tier engines report against.
package kpi

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	YouTube   Platform = "youtube"
	LinkedIn  Platform = "linkedin"
	Twitter   Platform = "twitter"
	TikTok    Platform = "tiktok"
	Website   Platform = "website"
)

// Platforms returns every supported platform in a stable order.
func Platforms() []Platform {
	return []Platform{Facebook, Instagram, YouTube, LinkedIn, Twitter, TikTok, Website}
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// Tier identifies which escalation level produced a result.
type Tier int

const (
	TierAPI Tier = iota + 1
	TierScrape
	TierSimulate
)

func (t Tier) String() string {
	switch t {
	case TierAPI:
		return "API"
	case TierScrape:
		return "SCRAPE"
	case TierSimulate:
		return "SIMULATE"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ConfidenceForTier maps the producing tier to a trust label. Higher
// tiers infer more from imperfect signals, so they rank lower.
func ConfidenceForTier(t Tier) Confidence {
	switch t {
	case TierAPI:
		return ConfidenceHigh
	case TierScrape:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ExtractionRequest is one platform+profile pair in a batch. Immutable.
type ExtractionRequest struct {
	Platform   Platform
	ProfileURL string
}

// SiteMeta carries the metadata extracted for the website pseudo-platform,
// which has no social metrics of its own.
type SiteMeta struct {
	Title       string
	Description string
}

// ExtractionResult is the uniform shape every tier maps its findings into.
// Constructed once, never mutated afterwards.
type ExtractionResult struct {
	Platform   Platform
	Followers  int64
	Posts      int64
	Engagement EngagementMetrics
	Site       *SiteMeta
	TierUsed   Tier
	FetchedAt  time.Time
	Confidence Confidence
}
