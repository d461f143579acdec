package identity

import (
	"fmt"
	"math/rand"

	browser "github.com/EDDYCJY/fake-useragent"
)

// Fingerprint is the browser identity presented to a target platform.
// Never reused verbatim across concurrent tasks for the same platform.
type Fingerprint struct {
	UserAgent       string
	ViewportWidth   int
	ViewportHeight  int
	Locale          string
	Timezone        string
	CanvasNoiseSeed int64
}

// key is the collision identity of a fingerprint for the in-flight and
// retired sets. Viewport and locale alone don't distinguish a browser,
// the UA + canvas seed pair does.
func (f Fingerprint) key() string {
	return fmt.Sprintf("%s|%d", f.UserAgent, f.CanvasNoiseSeed)
}

var viewports = [][2]int{
	{1280, 800},
	{1366, 768},
	{1440, 900},
	{1536, 864},
	{1920, 1080},
}

var locales = []string{"en-US", "en-GB", "fr-FR", "de-DE", "es-ES", "pt-BR"}

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Paris",
	"Europe/Berlin",
}

func newFingerprint(rng *rand.Rand, userAgent func() string) Fingerprint {
	if userAgent == nil {
		userAgent = browser.Random
	}
	vp := viewports[rng.Intn(len(viewports))]
	return Fingerprint{
		UserAgent:       userAgent(),
		ViewportWidth:   vp[0],
		ViewportHeight:  vp[1],
		Locale:          locales[rng.Intn(len(locales))],
		Timezone:        timezones[rng.Intn(len(timezones))],
		CanvasNoiseSeed: rng.Int63(),
	}
}
