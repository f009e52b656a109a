package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"chainarena/internal/core"
)

const critiqueTemplate = `You are an expert reviewer of prompts written for large language models.
Rate the user prompt below from 0 (unusable) to 10 (excellent) for how clear and specific it is.
Reply with a single JSON object and nothing else, exactly in this form:
{"score": <number from 0 to 10>, "description": "<one or two sentences explaining the score>"}

User prompt:
"""
%s
"""`

// CritiquePrompt builds the evaluation prompt sent to the critic.
func CritiquePrompt(userPrompt string) string {
	return fmt.Sprintf(critiqueTemplate, strings.TrimSpace(userPrompt))
}

// Critique scores userPrompt with the configured critic.
func (d *Dispatcher) Critique(ctx context.Context, userPrompt string) (*core.Critique, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return nil, core.NewValidationError("prompt is required", nil)
	}

	prompt := CritiquePrompt(userPrompt)

	var (
		raw string
		err error
	)
	switch {
	case d.critic.ContractAddress != "":
		raw, err = d.ask(ctx, d.critic.ContractAddress, prompt)
	case d.critic.Model != "":
		raw, err = d.Complete(ctx, d.critic.Model, prompt)
	default:
		return nil, core.NewProviderUnavailableError("critic", errors.New("no critic contract or model is configured"))
	}
	if err != nil {
		return nil, err
	}

	return ParseCritique(raw)
}

type critiqueRecord struct {
	Score       *float64 `json:"score"`
	Description *string  `json:"description"`
}

// ParseCritique strictly decodes {"score": number, "description": string}.
// Unknown, missing or mistyped fields, trailing data and scores outside 0..10
// are all reported as a malformed oracle response. A single markdown code
// fence around the object is removed first.
func ParseCritique(raw string) (*core.Critique, error) {
	body := unwrapCodeFence(raw)

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var rec critiqueRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, core.NewMalformedOracleResponseError("critique is not a valid JSON record: "+err.Error(), err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, core.NewMalformedOracleResponseError("critique has trailing data after the JSON record", err)
	}

	switch {
	case rec.Score == nil:
		return nil, core.NewMalformedOracleResponseError("critique is missing the score field", nil)
	case rec.Description == nil:
		return nil, core.NewMalformedOracleResponseError("critique is missing the description field", nil)
	case *rec.Score < 0 || *rec.Score > 10:
		return nil, core.NewMalformedOracleResponseError(fmt.Sprintf("critique score %v is outside 0..10", *rec.Score), nil)
	}

	return &core.Critique{Score: *rec.Score, Description: *rec.Description}, nil
}

func unwrapCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	// Drop a language tag such as ```json.
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
