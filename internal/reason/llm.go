package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"fleetops/internal/model"
)

// LLMAnalyzer asks an OpenAI-compatible chat endpoint to assess the fleet
// situation. Any failure (rate limit, timeout, malformed reply) degrades to
// the deterministic rule analyzer, so reasoning always produces a result.
type LLMAnalyzer struct {
	client   openai.Client
	model    string
	limiter  *rate.Limiter
	timeout  time.Duration
	fallback SituationAnalyzer
	lg       *slog.Logger
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// CallsPerMinute caps remote calls; exceeding it falls back immediately
	// instead of queueing behind the limiter.
	CallsPerMinute int
}

func NewLLMAnalyzer(cfg LLMConfig, fallback SituationAnalyzer, lg *slog.Logger) *LLMAnalyzer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "grok-3-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.CallsPerMinute <= 0 {
		cfg.CallsPerMinute = 10
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &LLMAnalyzer{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.CallsPerMinute)/60.0), cfg.CallsPerMinute),
		timeout:  cfg.Timeout,
		fallback: fallback,
		lg:       lg,
	}
}

func (a *LLMAnalyzer) Name() string { return "llm" }

func (a *LLMAnalyzer) Analyze(ctx context.Context, snap model.Snapshot) (model.ReasoningResult, error) {
	if !a.limiter.Allow() {
		a.lg.Warn("llm call budget exhausted, using rule analyzer")
		return a.degrade(ctx, snap)
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(cctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(snap)),
		},
		MaxCompletionTokens: openai.Int(2048),
	})
	if err != nil {
		a.lg.Warn("llm analysis failed", "error", err)
		return a.degrade(ctx, snap)
	}
	if len(resp.Choices) == 0 {
		a.lg.Warn("llm returned no choices")
		return a.degrade(ctx, snap)
	}

	result, err := parseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		a.lg.Warn("llm reply unparseable", "error", err)
		return a.degrade(ctx, snap)
	}
	result.Issues = PrioritizeIssues(result.Issues)
	result.ReasoningTrace = append(result.ReasoningTrace, "analysis by "+a.model)
	return result, nil
}

func (a *LLMAnalyzer) degrade(ctx context.Context, snap model.Snapshot) (model.ReasoningResult, error) {
	res, err := a.fallback.Analyze(ctx, snap)
	if err != nil {
		return res, err
	}
	res.ReasoningTrace = append(res.ReasoningTrace, "degraded to rule analyzer")
	return res, nil
}

const systemPrompt = `You are a delivery fleet operations analyst. Given fleet
state as JSON, identify operational issues. Reply with ONLY a JSON object:
{"situation_summary": str, "issues": [{"type": str, "severity": "low|medium|high|critical",
"description": str, "affected_truck_ids": [str], "affected_load_ids": [str]}],
"risk_assessment": "low|medium|high|critical", "confidence": float}`

func buildPrompt(snap model.Snapshot) string {
	b, _ := json.Marshal(struct {
		Trucks  []model.Truck            `json:"trucks"`
		Loads   []model.Load             `json:"loads"`
		Traffic []model.TrafficCondition `json:"traffic"`
	}{snap.Trucks, snap.Loads, snap.TrafficConditions})
	return string(b)
}

type llmIssue struct {
	Type             string   `json:"type"`
	Severity         string   `json:"severity"`
	Description      string   `json:"description"`
	AffectedTruckIDs []string `json:"affected_truck_ids"`
	AffectedLoadIDs  []string `json:"affected_load_ids"`
}

type llmAnalysis struct {
	SituationSummary string     `json:"situation_summary"`
	Issues           []llmIssue `json:"issues"`
	RiskAssessment   string     `json:"risk_assessment"`
	Confidence       float64    `json:"confidence"`
}

// parseAnalysis tolerates replies wrapped in markdown fences or prose by
// extracting the outermost JSON object.
func parseAnalysis(content string) (model.ReasoningResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return model.ReasoningResult{}, fmt.Errorf("no JSON object in reply")
	}
	var parsed llmAnalysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return model.ReasoningResult{}, err
	}

	now := time.Now().UTC()
	issues := make([]model.Issue, 0, len(parsed.Issues))
	for i, is := range parsed.Issues {
		if is.Type == "" {
			continue
		}
		if model.SeverityRank(is.Severity) == 2 && is.Severity != "medium" {
			is.Severity = "medium"
		}
		issues = append(issues, model.Issue{
			ID:               fmt.Sprintf("llm-%d-%d", now.UnixNano(), i),
			Type:             is.Type,
			Severity:         is.Severity,
			Description:      is.Description,
			AffectedTruckIDs: is.AffectedTruckIDs,
			AffectedLoadIDs:  is.AffectedLoadIDs,
			DetectedAt:       now,
		})
	}
	conf := parsed.Confidence
	if conf <= 0 || conf > 1 {
		conf = 0.5
	}
	return model.ReasoningResult{
		SituationSummary: parsed.SituationSummary,
		Issues:           issues,
		RiskAssessment:   parsed.RiskAssessment,
		Confidence:       conf,
	}, nil
}
