package marketdata

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/models"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

const (
	defaultPortalURL = "https://finance.naver.com"
	defaultRSSURL    = "https://news.google.com/rss/search"
	newsHTTPLimit    = 15 * time.Second
	portalMaxPages   = 3
	portalPageDelay  = 300 * time.Millisecond
)

// NewsService crawls company news from the finance portal and a news RSS.
// Results are concatenated with no dedup; dedup belongs to the ranker.
type NewsService struct {
	portalURL  string
	rssURL     string
	userAgent  string
	pageDelay  time.Duration
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewNewsService creates a news crawler with its own cookie jar; the jar
// carries the portal session cookies set during priming. Empty config
// fields fall back to the portal defaults.
func NewNewsService(config *common.NewsConfig, logger arbor.ILogger) *NewsService {
	jar, _ := cookiejar.New(nil)
	s := &NewsService{
		portalURL: defaultPortalURL,
		rssURL:    defaultRSSURL,
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		pageDelay: portalPageDelay,
		httpClient: &http.Client{
			Timeout: newsHTTPLimit,
			Jar:     jar,
		},
		logger: logger,
	}
	if config != nil {
		if config.PortalBaseURL != "" {
			s.portalURL = config.PortalBaseURL
		}
		if config.RSSBaseURL != "" {
			s.rssURL = config.RSSBaseURL
		}
		if config.UserAgent != "" {
			s.userAgent = config.UserAgent
		}
		s.pageDelay = common.DurationOr(config.RequestDelay, portalPageDelay)
		s.httpClient.Timeout = common.DurationOr(config.RequestTimeout, newsHTTPLimit)
	}
	return s
}

// News returns items for the ticker from both sources, newest first,
// filtered to the trailing window of days. Either source failing alone
// degrades to the other.
func (s *NewsService) News(ctx context.Context, ticker, name string, days int) ([]models.NewsItem, error) {
	if days <= 0 {
		days = 5
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	var items []models.NewsItem

	portal, portalErr := s.crawlPortal(ctx, ticker)
	if portalErr != nil {
		s.logger.Warn().Str("ticker", ticker).Err(portalErr).Msg("Portal news crawl failed")
	} else {
		items = append(items, portal...)
	}

	rss, rssErr := s.fetchRSS(ctx, ticker, name)
	if rssErr != nil {
		s.logger.Warn().Str("ticker", ticker).Err(rssErr).Msg("RSS news fetch failed")
	} else {
		items = append(items, rss...)
	}

	if len(items) == 0 && portalErr != nil && rssErr != nil {
		return nil, fmt.Errorf("all news sources failed for %s: %w", ticker, rssErr)
	}

	filtered := items[:0]
	for _, it := range items {
		if it.PublishedAt.After(cutoff) {
			filtered = append(filtered, it)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].PublishedAt.After(filtered[j].PublishedAt)
	})
	return filtered, nil
}

// prime visits the stock page first so the portal sets its session
// cookies; news pages reject jarless clients.
func (s *NewsService) prime(ctx context.Context, ticker string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/item/main.naver?code=%s", s.portalURL, ticker), nil)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (s *NewsService) crawlPortal(ctx context.Context, ticker string) ([]models.NewsItem, error) {
	if err := s.prime(ctx, ticker); err != nil {
		return nil, fmt.Errorf("portal priming failed: %w", err)
	}

	var items []models.NewsItem
	for page := 1; page <= portalMaxPages; page++ {
		if page > 1 && s.pageDelay > 0 {
			select {
			case <-time.After(s.pageDelay):
			case <-ctx.Done():
				return items, ctx.Err()
			}
		}
		pageItems, err := s.crawlPortalPage(ctx, ticker, page)
		if err != nil {
			return items, err
		}
		if len(pageItems) == 0 {
			break
		}
		items = append(items, pageItems...)
	}
	return items, nil
}

func (s *NewsService) crawlPortalPage(ctx context.Context, ticker string, page int) ([]models.NewsItem, error) {
	reqURL := fmt.Sprintf("%s/item/news_news.naver?code=%s&page=%d", s.portalURL, ticker, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.applyHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal returned status %d", resp.StatusCode)
	}

	// The portal serves EUC-KR
	reader := transform.NewReader(resp.Body, korean.EUCKR.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse portal page: %w", err)
	}

	var items []models.NewsItem
	doc.Find("table.type5 tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td.title a")
		if link.Length() == 0 {
			return
		}

		href, _ := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		source := strings.TrimSpace(row.Find("td.info").Text())
		dateText := strings.TrimSpace(row.Find("td.date").Text())
		if title == "" {
			return
		}

		published, err := time.ParseInLocation("2006.01.02 15:04", dateText, time.Local)
		if err != nil {
			return
		}

		if strings.HasPrefix(href, "/") {
			href = s.portalURL + href
		}
		items = append(items, models.NewsItem{
			Ticker:      ticker,
			Title:       title,
			Source:      source,
			URL:         href,
			PublishedAt: published,
		})
	})
	return items, nil
}

// rssFeed is the subset of the RSS 2.0 shape the crawler reads
type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			PubDate string `xml:"pubDate"`
			Source  string `xml:"source"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (s *NewsService) fetchRSS(ctx context.Context, ticker, name string) ([]models.NewsItem, error) {
	query := name
	if query == "" {
		query = ticker
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", "ko")
	params.Set("gl", "KR")
	params.Set("ceid", "KR:ko")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.rssURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	s.applyHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RSS returned status %d", resp.StatusCode)
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode RSS: %w", err)
	}

	items := make([]models.NewsItem, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		published, err := time.Parse(time.RFC1123Z, it.PubDate)
		if err != nil {
			if published, err = time.Parse(time.RFC1123, it.PubDate); err != nil {
				continue
			}
		}
		items = append(items, models.NewsItem{
			Ticker:      ticker,
			Title:       strings.TrimSpace(it.Title),
			Source:      strings.TrimSpace(it.Source),
			URL:         it.Link,
			PublishedAt: published,
		})
	}
	return items, nil
}

// applyHeaders sets the browser header set the portal expects; bare
// clients get blocked.
func (s *NewsService) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8")
	req.Header.Set("Referer", s.portalURL+"/")
}
