package apiclient

import (
	"context"
	"testing"
	"time"

	"socialkpi-backend/lib/kpi"

	"github.com/stretchr/testify/require"
)

func TestNew_AppliesDefaults(t *testing.T) {
	e := New(Config{})
	require.Equal(t, 30*time.Second, e.cfg.Timeout)
	require.Equal(t, 2.0, e.cfg.RequestsPerSecond)

	e = New(Config{Timeout: 5 * time.Second, RequestsPerSecond: 0.5})
	require.Equal(t, 5*time.Second, e.cfg.Timeout)
	require.Equal(t, 0.5, e.cfg.RequestsPerSecond)
}

func TestAttempt_PlatformsWithoutIntegrationAreUnavailable(t *testing.T) {
	e := New(Config{})
	ctx := context.Background()

	for _, platform := range []kpi.Platform{kpi.Instagram, kpi.LinkedIn, kpi.Website} {
		_, err := e.Attempt(ctx, kpi.ExtractionRequest{Platform: platform, ProfileURL: "https://example.com/x"}, nil)
		require.Equal(t, kpi.KindUnavailable, kpi.KindOf(err), "platform %s", platform)
	}

	// Integrated platforms without configured credentials degrade the
	// same way instead of making unauthenticated calls.
	_, err := e.Attempt(ctx, kpi.ExtractionRequest{Platform: kpi.YouTube, ProfileURL: "https://youtube.com/@x"}, nil)
	require.Equal(t, kpi.KindUnavailable, kpi.KindOf(err))
}

func TestHandleFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://twitter.com/example", "example"},
		{"https://tiktok.com/@example", "example"},
		{"https://youtube.com/c/example/", "example"},
	}
	for _, tc := range cases {
		got, err := handleFromURL(tc.url)
		require.NoError(t, err, "url %q", tc.url)
		require.Equal(t, tc.want, got, "url %q", tc.url)
	}

	_, err := handleFromURL("https://twitter.com/")
	require.Error(t, err)
}
