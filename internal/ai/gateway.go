package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/GoldenRal/modSTR/pkg/enums"
	"github.com/GoldenRal/modSTR/pkg/gemini"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// Outcome tags every gateway result so callers can branch without
// inspecting error chains.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeError       Outcome = "error"
)

// Usage is the token accounting attached to every provider-backed result.
// When the provider reports no exact counts the estimate fills in.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// ExtractResult is the outcome of a text-extraction call.
type ExtractResult struct {
	Outcome Outcome
	Text    string
	Usage   Usage
	Message string
}

// ClassifyResult is the outcome of a document classification call.
type ClassifyResult struct {
	Outcome Outcome
	Label   enums.DocumentType
	Usage   Usage
	Message string
}

// DerivedFields is the partial project metadata a derivation yields.
type DerivedFields struct {
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	Client       string         `json:"client"`
	SearchPeriod string         `json:"search_period"`
	Scenario     enums.Scenario `json:"-"`
}

// MetadataResult is the outcome of a metadata derivation call.
type MetadataResult struct {
	Outcome Outcome
	Fields  DerivedFields
	Usage   Usage
	Message string
}

// ReportResult is the outcome of a report generation or reformat call.
type ReportResult struct {
	Outcome      Outcome
	Content      string
	Summary      string
	RiskCategory enums.RiskCategory
	RiskFlags    []string
	Usage        Usage
	Message      string
}

type provider interface {
	GenerateContent(ctx context.Context, params gemini.GenerateParams) (*gemini.GenerateResult, error)
	Model() string
}

// supportedMIMEs go to the provider as inline file parts.
var supportedMIMEs = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/webp":      {},
	"text/csv":        {},
	"text/plain":      {},
}

// legacyOfficeMIMEs are recognized but deliberately not sent to the
// provider; they short-circuit to an unsupported result.
var legacyOfficeMIMEs = map[string]string{
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
}

// Gateway adapts the raw provider client into the domain operations the
// pipeline, deriver, and report services consume.
type Gateway struct {
	provider provider
	logger   *logger.Logger
}

// NewGateway builds the AI gateway.
func NewGateway(p provider, logg *logger.Logger) (*Gateway, error) {
	if p == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Gateway{provider: p, logger: logg}, nil
}

// Model reports the provider model in use, for usage audit rows.
func (g *Gateway) Model() string {
	return g.provider.Model()
}

// EstimateTokens approximates a token count from a byte length. The same
// estimate is used for pre-flight allowance checks and for metering when the
// provider reports no exact counts.
func EstimateTokens(length int) int64 {
	if length <= 0 {
		return 0
	}
	return int64((length + 3) / 4)
}

// Extract transcribes a document into plain text. Legacy office formats
// short-circuit to an unsupported result carrying placeholder text; mimes
// outside both allowlists are an error.
func (g *Gateway) Extract(ctx context.Context, fileName, mimeType string, content []byte) ExtractResult {
	normalized := normalizeMIME(mimeType)

	if ext, ok := legacyOfficeMIMEs[normalized]; ok {
		return ExtractResult{
			Outcome: OutcomeUnsupported,
			Text:    placeholderText(fileName, ext),
			Message: fmt.Sprintf("%s files cannot be read; convert %q to PDF and upload again", ext, fileName),
		}
	}
	if _, ok := supportedMIMEs[normalized]; !ok {
		return ExtractResult{
			Outcome: OutcomeError,
			Message: fmt.Sprintf("unrecognized file type %q", mimeType),
		}
	}

	result, err := g.provider.GenerateContent(ctx, gemini.GenerateParams{
		Operation:         "extract",
		SystemInstruction: extractSystemPrompt,
		Prompt:            extractUserPrompt,
		Files:             []gemini.InlineFile{{MIMEType: normalized, Data: content}},
	})
	if err != nil {
		outcome, message := classifyFailure(err)
		return ExtractResult{
			Outcome: outcome,
			Usage:   Usage{PromptTokens: EstimateTokens(len(extractUserPrompt) + len(content))},
			Message: message,
		}
	}

	return ExtractResult{
		Outcome: OutcomeSuccess,
		Text:    result.Text,
		Usage:   usageWithFallback(result, len(extractUserPrompt)+len(content)),
	}
}

// Classify labels extracted text with exactly one entry from the document
// type vocabulary. Anything the provider returns outside the vocabulary
// resolves to "Other".
func (g *Gateway) Classify(ctx context.Context, text string) ClassifyResult {
	prompt := classifyPrompt(text)
	result, err := g.provider.GenerateContent(ctx, gemini.GenerateParams{
		Operation:         "classify",
		SystemInstruction: classifySystemPrompt,
		Prompt:            prompt,
		MaxOutputTokens:   16,
	})
	if err != nil {
		outcome, message := classifyFailure(err)
		return ClassifyResult{
			Outcome: outcome,
			Usage:   Usage{PromptTokens: EstimateTokens(len(prompt))},
			Message: message,
		}
	}

	return ClassifyResult{
		Outcome: OutcomeSuccess,
		Label:   enums.NormalizeDocumentType(result.Text),
		Usage:   usageWithFallback(result, len(prompt)),
	}
}

// DeriveMetadata extracts partial project metadata from aggregated document
// text. Empty input short-circuits to an empty success with no provider call.
func (g *Gateway) DeriveMetadata(ctx context.Context, text string) MetadataResult {
	if strings.TrimSpace(text) == "" {
		return MetadataResult{Outcome: OutcomeSuccess, Fields: DerivedFields{Scenario: enums.ScenarioUnknown}}
	}

	prompt := derivePrompt(text)
	result, err := g.provider.GenerateContent(ctx, gemini.GenerateParams{
		Operation:         "derive_metadata",
		SystemInstruction: deriveSystemPrompt,
		Prompt:            prompt,
		ResponseSchema:    metadataSchema,
	})
	if err != nil {
		outcome, message := classifyFailure(err)
		return MetadataResult{
			Outcome: outcome,
			Usage:   Usage{PromptTokens: EstimateTokens(len(prompt))},
			Message: message,
		}
	}

	usage := usageWithFallback(result, len(prompt))

	var decoded struct {
		Name         string `json:"name"`
		Address      string `json:"address"`
		Client       string `json:"client"`
		SearchPeriod string `json:"search_period"`
		Scenario     string `json:"scenario"`
	}
	if err := json.Unmarshal([]byte(result.Text), &decoded); err != nil {
		return MetadataResult{
			Outcome: OutcomeError,
			Usage:   usage,
			Message: "provider returned malformed metadata",
		}
	}

	return MetadataResult{
		Outcome: OutcomeSuccess,
		Fields: DerivedFields{
			Name:         strings.TrimSpace(decoded.Name),
			Address:      strings.TrimSpace(decoded.Address),
			Client:       strings.TrimSpace(decoded.Client),
			SearchPeriod: strings.TrimSpace(decoded.SearchPeriod),
			Scenario:     enums.ParseScenario(decoded.Scenario),
		},
		Usage: usage,
	}
}

// AnalyzeCompleteness returns the required documents for the scenario minus
// the types already present. Deterministic set arithmetic; no provider call
// and no metering.
func (g *Gateway) AnalyzeCompleteness(present []enums.DocumentType, scenario enums.Scenario) []enums.DocumentType {
	have := make(map[enums.DocumentType]struct{}, len(present))
	for _, docType := range present {
		have[docType] = struct{}{}
	}

	var missing []enums.DocumentType
	for _, required := range scenario.RequiredDocuments() {
		if _, ok := have[required]; !ok {
			missing = append(missing, required)
		}
	}
	return missing
}

// ReportRequest carries the grounding text and presentation options for
// report generation.
type ReportRequest struct {
	Text         string
	Format       enums.ReportFormat
	Instructions string
}

// GenerateReport drafts a report grounded in the provided document text.
func (g *Gateway) GenerateReport(ctx context.Context, req ReportRequest) ReportResult {
	if strings.TrimSpace(req.Text) == "" {
		return ReportResult{Outcome: OutcomeError, Message: "no document text available to ground the report"}
	}
	return g.reportCall(ctx, "generate_report", reportPrompt(req.Text, req.Instructions, req.Format))
}

// ReformatReport rewrites an existing report into a different format.
func (g *Gateway) ReformatReport(ctx context.Context, req ReportRequest) ReportResult {
	if strings.TrimSpace(req.Text) == "" {
		return ReportResult{Outcome: OutcomeError, Message: "no prior report content to reformat"}
	}
	return g.reportCall(ctx, "reformat_report", reformatPrompt(req.Text, req.Instructions, req.Format))
}

func (g *Gateway) reportCall(ctx context.Context, op, prompt string) ReportResult {
	result, err := g.provider.GenerateContent(ctx, gemini.GenerateParams{
		Operation:         op,
		SystemInstruction: reportSystemPrompt,
		Prompt:            prompt,
		ResponseSchema:    reportSchema,
	})
	if err != nil {
		outcome, message := classifyFailure(err)
		return ReportResult{
			Outcome: outcome,
			Usage:   Usage{PromptTokens: EstimateTokens(len(prompt))},
			Message: message,
		}
	}

	usage := usageWithFallback(result, len(prompt))

	var decoded struct {
		Content      string   `json:"content"`
		Summary      string   `json:"summary"`
		RiskCategory string   `json:"risk_category"`
		RiskFlags    []string `json:"risk_flags"`
	}
	if err := json.Unmarshal([]byte(result.Text), &decoded); err != nil || strings.TrimSpace(decoded.Content) == "" {
		return ReportResult{
			Outcome: OutcomeError,
			Usage:   usage,
			Message: "provider returned malformed report",
		}
	}

	return ReportResult{
		Outcome:      OutcomeSuccess,
		Content:      decoded.Content,
		Summary:      decoded.Summary,
		RiskCategory: enums.ParseRiskCategory(decoded.RiskCategory),
		RiskFlags:    decoded.RiskFlags,
		Usage:        usage,
	}
}

func classifyFailure(err error) (Outcome, string) {
	if errors.Is(err, gemini.ErrRateLimited) {
		return OutcomeRateLimited, "provider is busy, try again shortly"
	}
	return OutcomeError, err.Error()
}

func usageWithFallback(result *gemini.GenerateResult, promptLength int) Usage {
	usage := Usage{
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	}
	if usage.PromptTokens == 0 {
		usage.PromptTokens = EstimateTokens(promptLength)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = EstimateTokens(len(result.Text))
	}
	return usage
}

func normalizeMIME(mimeType string) string {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	if normalized == "image/jpg" {
		normalized = "image/jpeg"
	}
	return normalized
}

func placeholderText(fileName, ext string) string {
	return fmt.Sprintf("[Document %q is a %s file and could not be read automatically. "+
		"Its contents are not part of the extracted record.]", fileName, ext)
}
