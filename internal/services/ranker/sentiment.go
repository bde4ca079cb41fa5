package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/specula/internal/embedder"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/services/llm"
)

const (
	newsWindowDays     = 5
	maxTitlesPerTicker = 20

	// newsCrawlBatchSize bounds the parallel fan-out over the Top-50
	newsCrawlBatchSize = 10
)

const sentimentSystem = `당신은 한국 주식 시장 뉴스 분석가입니다. ` +
	`종목별 최근 뉴스 제목을 읽고 투자 심리가 긍정적인 순서대로 전체 종목의 순위를 매기세요. ` +
	`반드시 JSON만 출력하세요.`

// sentimentResponse is the expected completion shape
type sentimentResponse struct {
	Rankings []struct {
		Ticker string `json:"ticker"`
		Rank   int    `json:"rank"`
	} `json:"rankings"`
}

// sentimentScores ranks the base Top-50 by news sentiment in one LLM
// call and converts ranks to 0-10 scores (rank 1 best). Any failure
// returns an empty map; the caller treats absent tickers as neutral.
func (r *Ranker) sentimentScores(ctx context.Context, entries []*entry) map[string]float64 {
	if r.llm == nil || len(entries) < 2 {
		return nil
	}

	titlesByTicker := r.crawlTitles(ctx, entries)

	var sb strings.Builder
	for _, e := range entries {
		titles := titlesByTicker[e.st.Ticker]
		fmt.Fprintf(&sb, "## %s (%s)\n", e.st.Name, e.st.Ticker)
		if len(titles) == 0 {
			sb.WriteString("(최근 뉴스 없음)\n")
		}
		for _, t := range titles {
			sb.WriteString("- " + t + "\n")
		}
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf(`다음 %d개 종목의 최근 %d일 뉴스 제목입니다.
뉴스 심리가 가장 긍정적인 종목을 1위로 하여 모든 종목의 순위를 매기세요.
뉴스가 없는 종목은 중간 순위에 배치하세요.

%s
다음 형식의 JSON만 출력하세요:
{"rankings": [{"ticker": "005930", "rank": 1}, ...]}`,
		len(entries), newsWindowDays, sb.String())

	result, err := r.llm.Chat(ctx, prompt, interfaces.ChatOptions{
		System:      sentimentSystem,
		Temperature: 0.2,
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Sentiment ranking failed, falling back to neutral")
		return nil
	}

	var parsed sentimentResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(result.Text)), &parsed); err != nil {
		r.logger.Warn().Err(err).Msg("Sentiment ranking unparseable, falling back to neutral")
		return nil
	}

	n := len(entries)
	scores := make(map[string]float64, len(parsed.Rankings))
	for _, rk := range parsed.Rankings {
		if rk.Rank < 1 || rk.Rank > n {
			continue
		}
		scores[rk.Ticker] = 10 * float64(n-rk.Rank) / float64(n-1)
	}
	return scores
}

// crawlTitles fetches every entry's headlines with bounded fan-out.
// Prompt assembly stays in entry order; only the crawl is parallel.
func (r *Ranker) crawlTitles(ctx context.Context, entries []*entry) map[string][]string {
	out := make(map[string][]string, len(entries))
	var mu sync.Mutex

	for start := 0; start < len(entries); start += newsCrawlBatchSize {
		end := start + newsCrawlBatchSize
		if end > len(entries) {
			end = len(entries)
		}

		var wg sync.WaitGroup
		for _, e := range entries[start:end] {
			wg.Add(1)
			go func(ticker, name string) {
				defer wg.Done()
				titles := r.tickerTitles(ctx, ticker, name)
				mu.Lock()
				out[ticker] = titles
				mu.Unlock()
			}(e.st.Ticker, e.st.Name)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return out
		}
	}
	return out
}

// tickerTitles fetches, dedups and caps one ticker's recent headlines.
// News failures yield an empty list, never an error.
func (r *Ranker) tickerTitles(ctx context.Context, ticker, name string) []string {
	items, err := r.news.News(ctx, ticker, name, newsWindowDays)
	if err != nil {
		r.logger.Debug().Err(err).Str("ticker", ticker).Msg("News fetch failed")
		return nil
	}

	titles := make([]string, 0, len(items))
	for _, it := range items {
		if t := strings.TrimSpace(it.Title); t != "" {
			titles = append(titles, t)
		}
	}

	titles = r.dedupTitles(ctx, titles)
	if len(titles) > maxTitlesPerTicker {
		titles = titles[:maxTitlesPerTicker]
	}
	return titles
}

// dedupTitles drops titles whose embedding is within the similarity
// threshold of an already-kept one. Without a live embedding server the
// list passes through unchanged.
func (r *Ranker) dedupTitles(ctx context.Context, titles []string) []string {
	if len(titles) < 2 || r.embedder == nil || !r.embedder.Available() {
		return titles
	}

	vectors, err := r.embedder.Embed(ctx, titles)
	if err != nil || len(vectors) != len(titles) {
		r.logger.Debug().Err(err).Msg("Embedding failed, skipping dedup")
		return titles
	}

	kept := make([]string, 0, len(titles))
	var keptVecs [][]float32
	for i, title := range titles {
		dup := false
		for _, kv := range keptVecs {
			if embedder.CosineSimilarity(vectors[i], kv) >= r.simThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, title)
			keptVecs = append(keptVecs, vectors[i])
		}
	}
	return kept
}
