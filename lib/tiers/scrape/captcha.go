package scrape

import (
	"bytes"

	"socialkpi-backend/lib/kpi"
)

// challengeMarkers are substrings whose presence in a response body
// means the platform served a bot-detection interstitial instead of the
// profile. Matched case-sensitively against known challenge payloads.
var challengeMarkers = [][]byte{
	[]byte("cf-challenge"),
	[]byte("cf-browser-verification"),
	[]byte("g-recaptcha"),
	[]byte("h-captcha"),
	[]byte("challenge_required"),
	[]byte("Checking your browser before accessing"),
	[]byte("unusual traffic from your computer network"),
	[]byte("id=\"challenge-form\""),
	[]byte("px-captcha"),
	[]byte("Verify you are human"),
}

// ClassifyBody reports whether a document is a challenge interstitial.
// The simulation tier runs it against browser-rendered HTML too.
func ClassifyBody(body []byte) (kpi.ErrorKind, bool) {
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return kpi.KindCaptchaDetected, true
		}
	}
	return "", false
}

// classifyResponse decides whether a response is a block rather than
// content. 429 is plain throttling; 403 and challenge markers at any
// status mean detection, which makes further attempts on this tier
// futile.
func classifyResponse(status int, body []byte) (kpi.ErrorKind, bool) {
	if status == 429 {
		return kpi.KindRateLimited, true
	}
	if kind, blocked := ClassifyBody(body); blocked {
		return kind, true
	}
	if status == 403 {
		return kpi.KindCaptchaDetected, true
	}
	if status >= 400 {
		return kpi.KindNetworkError, true
	}
	return "", false
}
