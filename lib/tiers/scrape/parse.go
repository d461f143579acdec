package scrape

import (
	"regexp"
	"strconv"

	"socialkpi-backend/lib/kpi"
	"socialkpi-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// ParseProfile extracts the platform's metrics from a fetched profile
// document. The simulation tier reuses it on browser-rendered HTML, so
// the selectors here are the single source of truth for what each
// platform's page exposes.
func ParseProfile(platform kpi.Platform, doc *goquery.Document, body []byte) (*kpi.ExtractionResult, error) {
	switch platform {
	case kpi.Instagram:
		return parseInstagram(doc, body)
	case kpi.Facebook:
		return parseFacebook(doc, body)
	case kpi.Twitter:
		return parseTwitter(doc, body)
	case kpi.YouTube:
		return parseYouTube(doc, body)
	case kpi.TikTok:
		return parseTikTok(doc, body)
	case kpi.LinkedIn:
		return parseLinkedIn(doc, body)
	case kpi.Website:
		return parseWebsite(doc)
	}
	return nil, kpi.Errorf(kpi.KindUnavailable, platform, "no scraping rules for platform")
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).Attr("content")
	if content == "" {
		content, _ = doc.Find(`meta[name="` + property + `"]`).Attr("content")
	}
	return content
}

// jsonCount pulls an integer out of embedded page state like
// `"edge_followed_by":{"count":24500}` or `"followerCount":24500`.
func jsonCount(body []byte, re *regexp.Regexp) (int64, bool) {
	m := re.FindSubmatch(body)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func newResult(platform kpi.Platform, followers, posts int64, engagement kpi.EngagementMetrics) *kpi.ExtractionResult {
	return &kpi.ExtractionResult{
		Platform:   platform,
		Followers:  followers,
		Posts:      posts,
		Engagement: kpi.ComputeEngagement(followers, engagement),
		TierUsed:   kpi.TierScrape,
		Confidence: kpi.ConfidenceMedium,
	}
}

var (
	igFollowedBy = regexp.MustCompile(`"edge_followed_by":\{"count":(\d+)\}`)
	igMediaCount = regexp.MustCompile(`"edge_owner_to_timeline_media":\{"count":(\d+)`)
	igLikedBy    = regexp.MustCompile(`"edge_liked_by":\{"count":(\d+)\}`)
	igComments   = regexp.MustCompile(`"edge_media_to_comment":\{"count":(\d+)\}`)
)

// parseInstagram prefers the og:description meta ("24.5K Followers,
// 810 Following, 85 Posts"), falling back to the shared-data JSON the
// page embeds. Engagement averages come from the visible post edges.
func parseInstagram(doc *goquery.Document, body []byte) (*kpi.ExtractionResult, error) {
	desc := metaContent(doc, "og:description")

	followers, ok := textutil.ExtractFollowerCount(desc)
	if !ok {
		followers, ok = jsonCount(body, igFollowedBy)
	}
	if !ok {
		return nil, kpi.Errorf(kpi.KindParseError, kpi.Instagram, "no follower count in page")
	}

	posts, ok := textutil.ExtractCountBefore(desc, "Posts")
	if !ok {
		posts, _ = jsonCount(body, igMediaCount)
	}

	engagement := kpi.EngagementMetrics{}
	if likes, ok := averageMatches(body, igLikedBy); ok {
		engagement.AvgLikes = kpi.Count(likes)
	}
	if comments, ok := averageMatches(body, igComments); ok {
		engagement.AvgComments = kpi.Count(comments)
	}

	return newResult(kpi.Instagram, followers, posts, engagement), nil
}

// averageMatches averages every occurrence of a count pattern, used for
// per-post edges visible in the initially loaded page state.
func averageMatches(body []byte, re *regexp.Regexp) (int64, bool) {
	matches := re.FindAllSubmatch(body, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var sum int64
	for _, m := range matches {
		n, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil {
			return 0, false
		}
		sum += n
	}
	return sum / int64(len(matches)), true
}

var fbLikesPhrase = regexp.MustCompile(`(?i)([\d.,]+\s*[KMB]?)\s+likes`)

func parseFacebook(doc *goquery.Document, body []byte) (*kpi.ExtractionResult, error) {
	desc := metaContent(doc, "og:description")

	followers, ok := textutil.ExtractFollowerCount(desc)
	if !ok {
		if m := fbLikesPhrase.FindStringSubmatch(desc); m != nil {
			if n, err := textutil.ParseCompactCount(m[1]); err == nil {
				followers, ok = n, true
			}
		}
	}
	if !ok {
		return nil, kpi.Errorf(kpi.KindParseError, kpi.Facebook, "no fan count in page")
	}
	return newResult(kpi.Facebook, followers, 0, kpi.EngagementMetrics{}), nil
}

var (
	twFollowers = regexp.MustCompile(`"followers_count":(\d+)`)
	twTweets    = regexp.MustCompile(`"statuses_count":(\d+)`)
)

func parseTwitter(doc *goquery.Document, body []byte) (*kpi.ExtractionResult, error) {
	followers, ok := jsonCount(body, twFollowers)
	if !ok {
		followers, ok = textutil.ExtractFollowerCount(metaContent(doc, "og:description"))
	}
	if !ok {
		return nil, kpi.Errorf(kpi.KindParseError, kpi.Twitter, "no follower count in page")
	}
	tweets, _ := jsonCount(body, twTweets)
	return newResult(kpi.Twitter, followers, tweets, kpi.EngagementMetrics{}), nil
}

var (
	ytSubscribers = regexp.MustCompile(`"subscriberCountText":\{"simpleText":"([^"]+) subscribers?"`)
	ytVideos      = regexp.MustCompile(`"videosCountText":\{"runs":\[\{"text":"([\d.,KMB]+)"`)
)

func parseYouTube(doc *goquery.Document, body []byte) (*kpi.ExtractionResult, error) {
	var followers int64
	found := false
	if m := ytSubscribers.FindSubmatch(body); m != nil {
		if n, err := textutil.ParseCompactCount(string(m[1])); err == nil {
			followers, found = n, true
		}
	}
	if !found {
		followers, found = textutil.ExtractFollowerCount(metaContent(doc, "og:description"))
	}
	if !found {
		return nil, kpi.Errorf(kpi.KindParseError, kpi.YouTube, "no subscriber count in page")
	}

	var videos int64
	if m := ytVideos.FindSubmatch(body); m != nil {
		if n, err := textutil.ParseCompactCount(string(m[1])); err == nil {
			videos = n
		}
	}
	return newResult(kpi.YouTube, followers, videos, kpi.EngagementMetrics{}), nil
}

var (
	ttFollowers = regexp.MustCompile(`"followerCount":(\d+)`)
	ttVideos    = regexp.MustCompile(`"videoCount":(\d+)`)
	ttHearts    = regexp.MustCompile(`"heartCount":(\d+)`)
)

func parseTikTok(doc *goquery.Document, body []byte) (*kpi.ExtractionResult, error) {
	followers, ok := jsonCount(body, ttFollowers)
	if !ok {
		followers, ok = textutil.ExtractFollowerCount(metaContent(doc, "og:description"))
	}
	if !ok {
		return nil, kpi.Errorf(kpi.KindParseError, kpi.TikTok, "no follower count in page")
	}

	videos, _ := jsonCount(body, ttVideos)
	engagement := kpi.EngagementMetrics{}
	if hearts, ok := jsonCount(body, ttHearts); ok && videos > 0 {
		engagement.AvgLikes = kpi.Count(hearts / videos)
	}
	return newResult(kpi.TikTok, followers, videos, engagement), nil
}

func parseLinkedIn(doc *goquery.Document, _ []byte) (*kpi.ExtractionResult, error) {
	followers, ok := textutil.ExtractFollowerCount(metaContent(doc, "og:description"))
	if !ok {
		return nil, kpi.Errorf(kpi.KindParseError, kpi.LinkedIn, "no follower count in page")
	}
	return newResult(kpi.LinkedIn, followers, 0, kpi.EngagementMetrics{}), nil
}

// parseWebsite handles the website pseudo-platform: no social metrics,
// just the page's title and description for the dashboard header.
func parseWebsite(doc *goquery.Document) (*kpi.ExtractionResult, error) {
	title := textutil.NormalizeSpace(doc.Find("title").First().Text())
	if og := metaContent(doc, "og:title"); og != "" {
		title = og
	}
	desc := metaContent(doc, "description")
	if og := metaContent(doc, "og:description"); og != "" {
		desc = og
	}

	result := newResult(kpi.Website, 0, 0, kpi.EngagementMetrics{})
	result.Site = &kpi.SiteMeta{Title: title, Description: desc}
	return result, nil
}
