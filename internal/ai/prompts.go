package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GoldenRal/modSTR/pkg/enums"
)

const extractSystemPrompt = `You are a legal document digitization assistant for Indian property
title searches. Transcribe the attached document faithfully into plain text.
Preserve clause numbering, names, dates, survey numbers, and monetary
amounts exactly. Do not summarize, interpret, or omit content.`

const extractUserPrompt = `Transcribe the attached document into plain text.`

const classifySystemPrompt = `You classify Indian property documents for title-search work. Respond
with exactly one label from the provided list and nothing else.`

const deriveSystemPrompt = `You extract project metadata from Indian property title documents.
Respond only with the requested JSON. Leave a field empty when the
documents do not state it; never invent values.`

const reportSystemPrompt = `You are a senior property lawyer drafting a Search Title Report (STR)
for an Indian property. Ground every statement in the provided document
text. Flag gaps, encumbrances, and chain-of-title defects conservatively.
Respond only with the requested JSON.`

var metadataSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"address": {"type": "string"},
		"client": {"type": "string"},
		"search_period": {"type": "string"},
		"scenario": {"type": "string"}
	}
}`)

var reportSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"content": {"type": "string"},
		"summary": {"type": "string"},
		"risk_category": {"type": "string"},
		"risk_flags": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["content", "summary", "risk_category"]
}`)

func classifyPrompt(text string) string {
	labels := make([]string, 0, len(enums.DocumentTypes()))
	for _, docType := range enums.DocumentTypes() {
		labels = append(labels, docType.String())
	}
	return fmt.Sprintf("Labels:\n%s\n\nDocument text:\n%s\n\nLabel:",
		strings.Join(labels, "\n"), text)
}

func derivePrompt(text string) string {
	scenarios := []string{
		enums.ScenarioFlatInSociety.String(),
		enums.ScenarioIndependentHouse.String(),
		enums.ScenarioInheritedProperty.String(),
		enums.ScenarioUnderConstruction.String(),
		enums.ScenarioAgriculturalLand.String(),
		enums.ScenarioUnknown.String(),
	}
	return fmt.Sprintf(`From the document text below, derive:
- name: a short working title for the property matter
- address: the property address
- client: the prospective purchaser or client name if stated
- search_period: the period the title chain covers (e.g. "1994-2024")
- scenario: one of %s

Document text:
%s`, strings.Join(scenarios, ", "), text)
}

func reportPrompt(text, instructions string, format enums.ReportFormat) string {
	var b strings.Builder
	b.WriteString("Draft a Search Title Report in the ")
	b.WriteString(format.String())
	b.WriteString(" format.\n")
	switch format {
	case enums.ReportFormatDetailed:
		b.WriteString("Cover every document in depth with a full chain-of-title narrative.\n")
	case enums.ReportFormatBankSubmission:
		b.WriteString("Structure the report for submission to a lending bank: certificate of title, schedule of property, list of documents scrutinized, and a clear lending opinion.\n")
	default:
		b.WriteString("Keep the report concise: ownership summary, encumbrances, and opinion.\n")
	}
	b.WriteString("Grade overall risk as LOW, MODERATE, HIGH, or SEVERE and list individual risk flags.\n")
	if strings.TrimSpace(instructions) != "" {
		b.WriteString("\nAdvocate instructions:\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}
	b.WriteString("\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

func reformatPrompt(content, instructions string, format enums.ReportFormat) string {
	var b strings.Builder
	b.WriteString("Rewrite the existing Search Title Report below into the ")
	b.WriteString(format.String())
	b.WriteString(" format. Keep every finding; change only structure and emphasis.\n")
	if strings.TrimSpace(instructions) != "" {
		b.WriteString("\nAdvocate instructions:\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}
	b.WriteString("\nExisting report:\n")
	b.WriteString(content)
	return b.String()
}
