package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/specula/internal/models"
)

const morningSystem = `당신은 한국 주식 시장 전문 애널리스트입니다. ` +
	`제공된 계량 데이터와 웹 검색 결과를 종합하여 장전 리포트를 작성하세요. ` +
	`점수는 제공된 값을 그대로 사용하고 반드시 JSON만 출력하세요.`

const afternoonSystem = `당신은 한국 주식 시장 전문 애널리스트입니다. ` +
	`오늘의 급등 감지 결과와 시장 지표를 종합하여 장마감 리포트를 작성하세요. ` +
	`반드시 JSON만 출력하세요.`

// sessionSchedule labels the trading-day windows for the morning prompt
var sessionSchedule = []string{
	"08:30~08:40 장전 시간외",
	"08:40~09:00 장전 동시호가",
	"09:00~15:20 정규장",
	"15:20~15:30 장마감 동시호가",
	"16:00~18:00 시간외 단일가",
}

// buildMorningPrompt composes the macro recap plus the enriched Top-10
func buildMorningPrompt(date time.Time, macro *models.MarketIndex, stocks []stockContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s 장전 리포트 작성 요청\n\n", date.Format("2006-01-02"))

	sb.WriteString("## 전일 시장 동향\n")
	fmt.Fprintf(&sb, "KOSPI %.2f (%+.2f%%, %+.2fp), 거래대금 %.0f억원\n",
		macro.KOSPIClose, macro.KOSPIChangeRate, macro.KOSPIChangePoints, macro.KOSPITradingValue)
	fmt.Fprintf(&sb, "KOSDAQ %.2f (%+.2f%%, %+.2fp)\n",
		macro.KOSDAQClose, macro.KOSDAQChangeRate, macro.KOSDAQChangePoints)
	fmt.Fprintf(&sb, "KOSPI 수급: 외국인 %+.0f억원, 기관 %+.0f억원, 개인 %+.0f억원\n\n",
		macro.KOSPIFlow.Foreign, macro.KOSPIFlow.Institution, macro.KOSPIFlow.Individual)

	sb.WriteString("## 오늘의 관심 종목 (Top-10)\n")
	for i, st := range stocks {
		fmt.Fprintf(&sb, "%d. %s (%s) 종가 %.0f원 (%+.2f%%), 종합점수 %.2f (모멘텀 %.1f / 거래량 %.1f / 기술 %.1f / 심리 %.1f)\n",
			i+1, st.Name, st.Ticker, st.Price, st.ChangeRate, st.FinalScore,
			st.MomentumScore, st.VolumeScore, st.TechnicalScore, st.SentimentScore)
		if st.ATR != nil {
			fmt.Fprintf(&sb, "   ATR(14) %.0f, 전전일 추정 종가 %.0f원\n", *st.ATR, st.ImpliedD2)
		}
		if st.Realtime != nil {
			fmt.Fprintf(&sb, "   실시간 %.0f원 (%+.2f%%)\n", st.Realtime.CurrentPrice, st.Realtime.ChangeRate)
		}
	}

	sb.WriteString("\n## 오늘의 매매 일정\n")
	for _, w := range sessionSchedule {
		sb.WriteString("- " + w + "\n")
	}

	sb.WriteString(`
웹 검색으로 전일 미국 증시와 주요 이슈를 확인한 뒤 다음 JSON만 출력하세요:
{"market_overview": "전일 국내외 시장 요약과 오늘 전망",
 "top_stocks": [{"comment": "종목별 한 줄 코멘트"}],
 "watch_points": ["오늘 주목할 포인트"],
 "outlook": "오늘 장 전망"}
top_stocks 배열은 관심 종목 순서와 동일해야 합니다.`)
	return sb.String()
}

// buildAfternoonPrompt composes the trigger recap plus the closing index
func buildAfternoonPrompt(date time.Time, index *models.MarketIndex, rows []models.TriggerResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s 장마감 리포트 작성 요청\n\n", date.Format("2006-01-02"))

	sb.WriteString("## 금일 시장 지표\n")
	fmt.Fprintf(&sb, "KOSPI %.2f (%+.2f%%), KOSDAQ %.2f (%+.2f%%)\n",
		index.KOSPIClose, index.KOSPIChangeRate, index.KOSDAQClose, index.KOSDAQChangeRate)
	fmt.Fprintf(&sb, "상승 %d / 하락 %d / 보합 %d\n",
		index.Advancing, index.Declining, index.Unchanged)
	fmt.Fprintf(&sb, "KOSPI 수급: 외국인 %+.0f억원, 기관 %+.0f억원, 개인 %+.0f억원\n\n",
		index.KOSPIFlow.Foreign, index.KOSPIFlow.Institution, index.KOSPIFlow.Individual)

	sb.WriteString("## 금일 급등 감지 종목\n")
	if len(rows) == 0 {
		sb.WriteString("(감지 종목 없음)\n")
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "- [%s] %s (%s) %.0f원 (%+.2f%%), 점수 %.2f\n",
			r.TriggerType, r.Name, r.Ticker, r.Price, r.ChangeRate, r.CompositeScore)
	}

	sb.WriteString(`
웹 검색으로 금일 시장 이슈를 확인한 뒤 다음 JSON만 출력하세요:
{"summary": "금일 시장 총평",
 "trigger_analysis": [{"ticker": "종목코드", "comment": "급등 배경 분석"}],
 "tomorrow_outlook": "내일 장 전망"}`)
	return sb.String()
}
