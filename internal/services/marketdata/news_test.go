package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
)

func TestNewNewsService_Defaults(t *testing.T) {
	svc := NewNewsService(nil, arbor.NewLogger())
	assert.Equal(t, defaultPortalURL, svc.portalURL)
	assert.Equal(t, defaultRSSURL, svc.rssURL)
	assert.Equal(t, portalPageDelay, svc.pageDelay)
	assert.Equal(t, newsHTTPLimit, svc.httpClient.Timeout)
}

func TestNews_ConfiguredEndpoints(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	var gotUA string

	mux := http.NewServeMux()
	mux.HandleFunc("/item/main.naver", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	})
	mux.HandleFunc("/item/news_news.naver", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprintf(w, `<table class="type5"><tr>
			<td class="title"><a href="/news/1">Earnings beat</a></td>
			<td class="info">WireA</td>
			<td class="date">%s</td>
		</tr></table>`, recent.Format("2006.01.02 15:04"))
	})
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss><channel><item>
			<title>Guidance raised</title>
			<link>http://news.example/2</link>
			<pubDate>%s</pubDate>
			<source>WireB</source>
		</item></channel></rss>`, recent.Add(-time.Hour).Format(time.RFC1123Z))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	svc := NewNewsService(&common.NewsConfig{
		PortalBaseURL:  server.URL,
		RSSBaseURL:     server.URL + "/rss",
		UserAgent:      "specula-test/1.0",
		RequestDelay:   "1ms",
		RequestTimeout: "5s",
	}, arbor.NewLogger())

	assert.Equal(t, time.Millisecond, svc.pageDelay)
	assert.Equal(t, 5*time.Second, svc.httpClient.Timeout)

	items, err := svc.News(context.Background(), "005930", "삼성전자", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Newest first: the portal item is an hour fresher than the RSS one
	assert.Equal(t, "Earnings beat", items[0].Title)
	assert.Equal(t, "Guidance raised", items[1].Title)
	assert.Equal(t, "specula-test/1.0", gotUA)
}
