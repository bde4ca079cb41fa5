package analysis

import (
	"fmt"
	"strings"

	"github.com/ternarybob/specula/internal/models"
)

const classifySystem = `당신은 한국 주식 뉴스 분류기입니다. ` +
	`뉴스 제목을 긍정/부정/중립으로 분류하고 JSON만 출력하세요.`

const finalizeSystem = `당신은 한국 주식 전문 애널리스트입니다. ` +
	`제공된 계량 분석 결과를 기반으로 종합 기업 분석을 작성하세요. ` +
	`목표가는 제공된 예비 목표가에서 크게 벗어나지 않아야 합니다. ` +
	`반드시 JSON만 출력하세요.`

// buildClassifyPrompt asks for the sentiment tally over the headlines
func buildClassifyPrompt(name string, titles []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s 관련 최근 뉴스 제목 %d건입니다.\n\n", name, len(titles))
	for _, t := range titles {
		sb.WriteString("- " + t + "\n")
	}
	sb.WriteString(`
각 제목을 긍정(+)/부정(-)/중립(0)으로 분류하고 다음 JSON만 출력하세요:
{"positive": 0, "negative": 0, "neutral": 0,
 "positive_examples": ["대표 긍정 제목 최대 3건"],
 "negative_examples": ["대표 부정 제목 최대 3건"]}`)
	return sb.String()
}

// buildFinalizePrompt composes the valuation breakdown plus market
// context for the one refinement call.
func buildFinalizePrompt(st *models.FilteredStock, price, changeRate float64, tech models.Technicals, steps models.ValuationSteps, cls *newsClassification) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s (%s) 기업 분석 요청\n\n", st.Name, st.Ticker)
	fmt.Fprintf(&sb, "## 현재가\n현재가 %.0f원, 등락률 %+.2f%%\n\n", price, changeRate)

	sb.WriteString("## 재무 지표\n")
	fmt.Fprintf(&sb, "PER %.2f / PBR %.2f / EPS %.0f / BPS %.0f / ROE %.1f%% / 부채비율 %.1f%% / 매출성장률 %.1f%%\n\n",
		st.PER, st.PBR, st.EPS, st.BPS, st.ROE, st.DebtRatio, st.RevenueGrowth)

	sb.WriteString("## 기술적 지표\n")
	fmt.Fprintf(&sb, "RSI %.1f / MACD %s / 이동평균 %s (SMA5 %.0f, SMA20 %.0f, SMA60 %.0f)\n\n",
		tech.RSI, tech.MACDStatus, tech.MAPosition, tech.SMA5, tech.SMA20, tech.SMA60)

	sb.WriteString("## 계량 밸류에이션 (3단계)\n")
	fmt.Fprintf(&sb, "1단계 기본 목표가: PER 기준 %.0f원, PBR 기준 %.0f원, 평균 %.0f원 (성장 배수 %.2f, ROE 배수 %.2f)\n",
		steps.PERTarget, steps.PBRTarget, steps.BaseTarget, steps.GrowthMultiplier, steps.ROEMultiplier)
	fmt.Fprintf(&sb, "2단계 기술적 조정: %+.1f%%\n", steps.TechnicalAdj*100)
	fmt.Fprintf(&sb, "3단계 뉴스 심리 조정: %+.2f%% (긍정 %d건, 부정 %d건)\n",
		steps.SentimentAdj*100, steps.PositiveNews, steps.NegativeNews)
	fmt.Fprintf(&sb, "예비 목표가: %.0f원\n\n", steps.PreliminaryTarget)

	if len(cls.PositiveExamples) > 0 || len(cls.NegativeExamples) > 0 {
		sb.WriteString("## 주요 뉴스\n")
		for _, t := range cls.PositiveExamples {
			sb.WriteString("- [긍정] " + t + "\n")
		}
		for _, t := range cls.NegativeExamples {
			sb.WriteString("- [부정] " + t + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`다음 키를 모두 포함한 JSON만 출력하세요:
{"summary": "핵심 요약",
 "opinion": "STRONG_BUY|BUY|HOLD|SELL|STRONG_SELL",
 "target_price": 0,
 "stop_loss_price": 0,
 "key_points": ["..."],
 "financial_analysis": {"summary": "...", "points": ["..."]},
 "industry_analysis": {"summary": "...", "points": ["..."]},
 "news_analysis": {"summary": "...", "points": ["..."]},
 "technical_analysis": {"summary": "...", "points": ["..."]},
 "risks": ["최소 3개"],
 "investment_strategy": "..."}`)
	return sb.String()
}
