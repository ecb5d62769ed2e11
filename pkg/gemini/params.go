package gemini

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// InlineFile carries raw document bytes for multimodal prompts.
type InlineFile struct {
	MIMEType string
	Data     []byte
}

// GenerateParams scopes a single generateContent call.
type GenerateParams struct {
	// Operation labels the call in logs and usage records.
	Operation string
	// SystemInstruction steers the model; optional.
	SystemInstruction string
	// Prompt is the user-turn text; required.
	Prompt string
	// Files are attached inline as additional parts of the user turn.
	Files []InlineFile
	// MaxOutputTokens caps the completion; zero leaves the provider default.
	MaxOutputTokens int
	// Temperature of zero is sent as-is for deterministic extraction work.
	Temperature float64
	// ResponseSchema, when set, forces JSON output conforming to the schema.
	ResponseSchema json.RawMessage
}

// GenerateResult is the text and token accounting of one completed call.
type GenerateResult struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

type generateContentRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p GenerateParams) toRequest() (*generateContentRequest, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	parts := make([]part, 0, len(p.Files)+1)
	parts = append(parts, part{Text: p.Prompt})
	for _, file := range p.Files {
		if len(file.Data) == 0 {
			continue
		}
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: file.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(file.Data),
		}})
	}

	req := &generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}
	if strings.TrimSpace(p.SystemInstruction) != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: p.SystemInstruction}}}
	}

	cfg := &generationConfig{
		Temperature:     &p.Temperature,
		MaxOutputTokens: p.MaxOutputTokens,
	}
	if len(p.ResponseSchema) > 0 {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = p.ResponseSchema
	}
	req.GenerationConfig = cfg

	return req, nil
}

func (r generateContentResponse) firstCandidateText() string {
	var b strings.Builder
	for _, candidate := range r.Candidates {
		for _, p := range candidate.Content.Parts {
			b.WriteString(p.Text)
		}
		break
	}
	return strings.TrimSpace(b.String())
}
