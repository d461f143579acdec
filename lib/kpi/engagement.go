package kpi

// EngagementMetrics aggregates per-post averages into a total and a rate.
// Fields that a platform does not expose stay nil and are excluded from
// the total. Computed once at result construction.
type EngagementMetrics struct {
	AvgLikes    *int64
	AvgComments *int64
	AvgRetweets *int64
	AvgShares   *int64
	AvgViews    *int64

	// TotalEngagement is the sum of the average count fields present above.
	TotalEngagement int64
	// EngagementRate is TotalEngagement / followers as a percentage.
	// Nil when followers is zero, the rate is undefined in that case.
	EngagementRate *float64
}

// Count wraps a literal for the optional average fields.
func Count(n int64) *int64 { return &n }

// ComputeEngagement derives TotalEngagement and EngagementRate from the
// average fields set on m. Views count toward the total; on video-first
// platforms they are the primary engagement signal.
func ComputeEngagement(followers int64, m EngagementMetrics) EngagementMetrics {
	var total int64
	for _, f := range []*int64{m.AvgLikes, m.AvgComments, m.AvgRetweets, m.AvgShares, m.AvgViews} {
		if f != nil {
			total += *f
		}
	}
	m.TotalEngagement = total
	if followers > 0 {
		rate := float64(total) / float64(followers) * 100
		m.EngagementRate = &rate
	} else {
		m.EngagementRate = nil
	}
	return m
}
