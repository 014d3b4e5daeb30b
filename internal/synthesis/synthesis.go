// Package synthesis turns findings into user-facing prose: the conversational
// answer, follow-up chips, the session greeting, and the advisor report.
package synthesis

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"finsight/internal/insight"
	"finsight/internal/llm"
	"finsight/internal/logging"
	"finsight/internal/router"
	"finsight/internal/search"
)

//go:embed prompts/response.txt
var responsePrompt string

//go:embed prompts/advisor.txt
var advisorPrompt string

const maxHistory = 6

// FallbackResponse is returned when synthesis fails outright.
const FallbackResponse = "I encountered an issue analysing your request. Please try again."

const trimPrompt = "You are a text editor. Shorten the following to under 60 words " +
	"while keeping all specific dollar figures. Remove any explanation " +
	"of process. Just the insight and the action. " +
	"Return only the shortened text, nothing else."

const chipPrompt = `You are generating follow-up question suggestions for a financial intelligence app.
Based on the user's question, the assistant's response, and the underlying agent findings,
generate exactly 2-3 specific follow-up questions the user might want to ask next.

Rules:
- Include real dollar figures from the findings where possible
- Each question should be a natural follow-up to the current response
- Keep each question under 70 characters
- Return ONLY a JSON array of strings: ["Question 1?", "Question 2?", "Question 3?"]`

const greetingPrompt = `You are a proactive financial intelligence system.
Greet the user and summarise the top financial opportunities identified for them today.

Rules:
- Be direct and specific, use real dollar figures from the findings
- Lead with the highest-impact finding
- Mention 2-3 specific opportunities with exact amounts in CAD
- End with an invitation to explore further
- Keep it to 3-4 sentences
- Format amounts as $X,XXX
- Never say "As an AI"
- Do not start with "I"`

// Synthesizer generates prose through an LLM client.
type Synthesizer struct {
	client llm.Client
}

func New(client llm.Client) *Synthesizer {
	return &Synthesizer{client: client}
}

type respondPayload struct {
	UserMessage   string                       `json:"user_message"`
	AgentFindings map[string][]insight.Finding `json:"agent_findings"`
	RecentHistory []router.Record              `json:"recent_history"`
	WebResults    []search.Result              `json:"web_search_results,omitempty"`
}

// Respond produces the conversational answer for a turn. Answers over 80
// words get a second trim call; a failed trim keeps the long answer. A
// failed first call yields FallbackResponse rather than an error, so the
// turn always has something to say.
func (s *Synthesizer) Respond(ctx context.Context, userMessage string, findings map[string][]insight.Finding, history []router.Record, webResults []search.Result) string {
	log := logging.Get(logging.CategoryAgents)

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	payload, err := json.Marshal(respondPayload{
		UserMessage:   userMessage,
		AgentFindings: findings,
		RecentHistory: history,
		WebResults:    webResults,
	})
	if err != nil {
		log.Error("failed to marshal synthesis payload", zap.Error(err))
		return FallbackResponse
	}

	text, err := s.client.CompleteWithSystem(ctx, responsePrompt, string(payload))
	if err != nil {
		log.Error("response synthesis failed", zap.Error(err))
		return FallbackResponse
	}
	text = strings.TrimSpace(text)

	if len(strings.Fields(text)) > 80 {
		trimmed, err := s.client.CompleteWithSystem(ctx, trimPrompt, text)
		if err != nil {
			log.Warn("response trimming failed", zap.Error(err))
			return text
		}
		text = strings.TrimSpace(trimmed)
	}
	return text
}

type chipPayload struct {
	UserMessage       string                       `json:"user_message"`
	AssistantResponse string                       `json:"assistant_response"`
	FindingsContext   map[string][]insight.Finding `json:"findings_context"`
}

// FollowUps generates up to three follow-up chips. Failure degrades to an
// empty list; the turn never blocks on chips.
func (s *Synthesizer) FollowUps(ctx context.Context, userMessage, response string, findings map[string][]insight.Finding) []string {
	log := logging.Get(logging.CategoryAgents)

	payload, err := json.Marshal(chipPayload{
		UserMessage:       userMessage,
		AssistantResponse: response,
		FindingsContext:   findings,
	})
	if err != nil {
		log.Error("failed to marshal chip payload", zap.Error(err))
		return nil
	}

	raw, err := s.client.CompleteWithSystem(ctx, chipPrompt, string(payload))
	if err != nil {
		log.Warn("follow-up chip generation failed", zap.Error(err))
		return nil
	}

	var chips []string
	if err := llm.DecodeJSON(raw, &chips); err != nil {
		log.Warn("follow-up chips malformed", zap.Error(err))
		return nil
	}
	if len(chips) > 3 {
		chips = chips[:3]
	}
	return chips
}

type greetingPayload struct {
	TopFindings      []insight.Finding `json:"top_findings"`
	PortfolioSummary struct {
		TotalValueCAD    float64 `json:"total_value_cad"`
		TotalGainLossCAD float64 `json:"total_gain_loss_cad"`
	} `json:"portfolio_summary"`
}

// Greeting synthesizes the session-start message from the top findings.
// On failure it falls back to a deterministic sentence built from the
// portfolio's total value.
func (s *Synthesizer) Greeting(ctx context.Context, topFindings []insight.Finding, totalValueCAD, totalGainLossCAD float64) string {
	p := greetingPayload{TopFindings: topFindings}
	p.PortfolioSummary.TotalValueCAD = totalValueCAD
	p.PortfolioSummary.TotalGainLossCAD = totalGainLossCAD

	payload, err := json.Marshal(p)
	if err != nil {
		return GreetingFallback(totalValueCAD)
	}
	text, err := s.client.CompleteWithSystem(ctx, greetingPrompt, string(payload))
	if err != nil {
		logging.Get(logging.CategoryAgents).Error("greeting synthesis failed", zap.Error(err))
		return GreetingFallback(totalValueCAD)
	}
	return strings.TrimSpace(text)
}

// GreetingFallback is the deterministic greeting used when synthesis fails.
func GreetingFallback(totalValueCAD float64) string {
	return fmt.Sprintf(
		"Welcome back. Your portfolio is worth %s CAD. "+
			"I've identified several opportunities, ask me anything to explore them.",
		formatDollars(totalValueCAD))
}

func formatDollars(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	dot := strings.IndexByte(s, '.')
	whole, frac := s[:dot], s[dot:]
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")
	for i := len(whole) - 3; i > 0; i -= 3 {
		whole = whole[:i] + "," + whole[i:]
	}
	if neg {
		return "-$" + whole + frac
	}
	return "$" + whole + frac
}

// AdvisorSections is the three-part advisor report parsed out of the
// model's tagged output.
type AdvisorSections struct {
	Headline    string
	FullPicture string
	DoNotDo     string
}

type advisorPayload struct {
	AgentFindings    []insight.Finding `json:"agent_findings"`
	PortfolioSummary any               `json:"portfolio_summary"`
}

// Advise produces the advisor report sections from ranked findings. Unlike
// the chat paths this propagates errors: the advisor endpoint has no useful
// degraded answer.
func (s *Synthesizer) Advise(ctx context.Context, findings []insight.Finding, portfolioSummary any) (AdvisorSections, error) {
	if len(findings) > 10 {
		findings = findings[:10]
	}
	payload, err := json.Marshal(advisorPayload{
		AgentFindings:    findings,
		PortfolioSummary: portfolioSummary,
	})
	if err != nil {
		return AdvisorSections{}, fmt.Errorf("failed to marshal advisor payload: %w", err)
	}

	raw, err := s.client.CompleteWithSystem(ctx, advisorPrompt, string(payload))
	if err != nil {
		return AdvisorSections{}, fmt.Errorf("advisor synthesis failed: %w", err)
	}

	return AdvisorSections{
		Headline:    parseSection(raw, "headline"),
		FullPicture: parseSection(raw, "full_picture"),
		DoNotDo:     parseSection(raw, "do_not_do"),
	}, nil
}

// AdvisorChips generates follow-up chips for the advisor report.
func (s *Synthesizer) AdvisorChips(ctx context.Context, headline, fullPicture string) []string {
	return s.FollowUps(ctx, "What should I focus on?", headline+"\n\n"+fullPicture, nil)
}

var sectionPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, tag := range []string{"headline", "full_picture", "do_not_do"} {
		sectionPatterns[tag] = regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
	}
}

func parseSection(text, tag string) string {
	re, ok := sectionPatterns[tag]
	if !ok {
		return ""
	}
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
