package scraping

import (
	"encoding/base64"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsChallenge(t *testing.T) {
	markers := []string{"challenge-platform", "Just a moment"}

	assert.True(t, isChallenge(`<script src="/cdn-cgi/challenge-platform/h/b"></script>`, markers))
	assert.True(t, isChallenge(`<title>Just a moment...</title>`, markers))
	assert.False(t, isChallenge(`<script id="__NEXT_DATA__">{}</script>`, markers))
	assert.False(t, isChallenge("anything", []string{""}))
	assert.False(t, isChallenge("anything", nil))
}

func TestCallRecorder(t *testing.T) {
	r := &callRecorder{}
	body := `{"query":"coordinates","lat":55.6}`

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.record(&network.Request{URL: "https://www.hemnet.se/graphql", Method: "POST"})
		}()
	}
	wg.Wait()
	r.record(&network.Request{
		URL:             "https://www.hemnet.se/graphql",
		Method:          "POST",
		PostDataEntries: []*network.PostDataEntry{{Bytes: base64.StdEncoding.EncodeToString([]byte(body))}},
	})

	calls := r.snapshot()
	require.Len(t, calls, 21)
	assert.Equal(t, body, calls[20].Body)

	calls[0].URL = "mutated"
	assert.NotEqual(t, "mutated", r.snapshot()[0].URL)
}

func TestPostBody(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	assert.Equal(t, "", postBody(nil))
	assert.Equal(t, `{"a":1}`, postBody([]*network.PostDataEntry{{Bytes: enc(`{"a":`)}, nil, {Bytes: enc(`1}`)}}))
	assert.Equal(t, "not base64!", postBody([]*network.PostDataEntry{{Bytes: "not base64!"}}))
}
