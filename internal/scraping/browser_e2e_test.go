//go:build e2e

package scraping

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malmohomes/collector/config"
)

const e2ePage = `<!doctype html><html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{}}}</script>
<script>fetch("/api/map", {method: "POST", body: JSON.stringify({lat: 55.6, lng: 13.0})});</script>
</body></html>`

func TestBrowserFetcherCapturesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/map" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		fmt.Fprint(w, e2ePage)
	}))
	defer srv.Close()

	cfg := config.BrowserConfig{
		Headless:      true,
		Locale:        "sv-SE",
		Timezone:      "Europe/Stockholm",
		PageTimeout:   30 * time.Second,
		SettleDelay:   time.Second,
		ChallengeWait: time.Second,
	}
	f, err := NewBrowserFetcher(cfg, []string{"challenge-platform"}, logrus.New())
	require.NoError(t, err)
	defer f.Close()

	page, err := f.Fetch(context.Background(), srv.URL+"/bostad/lagenhet-1")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "__NEXT_DATA__")

	var found bool
	for _, c := range page.Calls {
		if c.Method == "POST" && c.URL == srv.URL+"/api/map" {
			found = true
			assert.Contains(t, c.Body, `"lat":55.6`)
		}
	}
	assert.True(t, found, "map request should be captured")
}
