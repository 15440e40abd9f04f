// README: Parameter extraction: pattern pass, optional model pass, merge.
package extract

import (
	"context"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"wayfarer/internal/modules/params"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceNone   Confidence = "none"
)

// Prior is the part of the conversation state extraction depends on.
type Prior struct {
	Intent     params.Intent
	Parameters params.ParameterSet
	// PendingField is the field the assistant asked for last turn, if any.
	PendingField params.Field
}

// Outcome is the merged view after one utterance.
type Outcome struct {
	Intent     params.Intent
	Confidence Confidence
	Parameters params.ParameterSet
	// Updated lists the fields written this turn, pattern fields first.
	Updated         []params.Field
	FieldConfidence map[params.Field]Confidence
	// Inferred lists the fields that only the model pass supplied.
	Inferred []params.Field
	// Degraded is set when the model pass was wanted but failed.
	Degraded bool
}

type Extractor struct {
	llm      Completer
	schema   params.Schema
	location *time.Location
	logger   *zap.Logger
}

// NewExtractor builds an extractor. A nil llm disables the model pass; dates
// are resolved in loc (UTC when nil).
func NewExtractor(llm Completer, schema params.Schema, loc *time.Location, logger *zap.Logger) *Extractor {
	if schema == nil {
		schema = params.DefaultSchema()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{llm: llm, schema: schema, location: loc, logger: logger}
}

// Today is the reference date for now in the extractor's time zone.
func (e *Extractor) Today(now time.Time) civil.Date {
	return civil.DateOf(now.In(e.location))
}

// Extract interprets utterance against prior. Values found by the pattern
// pass overwrite prior values. The model pass runs only when the intent is
// unclear or required fields are still missing, and may only fill fields
// that neither the pattern pass nor prior state set.
func (e *Extractor) Extract(ctx context.Context, utterance string, prior Prior, now time.Time) Outcome {
	today := e.Today(now)
	ents := scan(utterance, today)

	intent, sure := detectIntent(ents, prior.Intent)
	out := Outcome{
		Intent:          intent,
		Confidence:      ConfidenceNone,
		Parameters:      prior.Parameters,
		FieldConfidence: map[params.Field]Confidence{},
	}
	if sure {
		out.Confidence = ConfidenceHigh
	}

	var turn params.ParameterSet
	patternFill := func() {
		turn = apply(out.Intent, ents, prior.Parameters)
		if prior.Intent == out.Intent {
			applyPending(out.Intent, prior.PendingField, utterance, ents, &turn)
		}
		for _, f := range out.Parameters.Merge(out.Intent, turn, nil) {
			out.Updated = append(out.Updated, f)
			out.FieldConfidence[f] = ConfidenceHigh
		}
	}
	if intent.Known() {
		patternFill()
	}

	if e.llm == nil || (intent.Known() && len(e.schema.Missing(intent, out.Parameters)) == 0) {
		return out
	}

	p, err := e.askModel(ctx, utterance, prior, today)
	if err != nil {
		out.Degraded = true
		e.logger.Warn("model extraction failed, continuing with pattern results", zap.Error(err))
		return out
	}

	if !out.Intent.Known() {
		proposed := params.Intent(p.Intent)
		if !proposed.Known() {
			return out
		}
		out.Intent = proposed
		out.Confidence = ConfidenceMedium
		patternFill()
	}

	inferred := p.toParams(out.Intent, today)
	allow := func(f params.Field) bool {
		return !turn.Has(out.Intent, f) && !prior.Parameters.Has(out.Intent, f)
	}
	for _, f := range out.Parameters.Merge(out.Intent, inferred, allow) {
		if !slices.Contains(out.Updated, f) {
			out.Updated = append(out.Updated, f)
		}
		out.Inferred = append(out.Inferred, f)
		out.FieldConfidence[f] = ConfidenceMedium
	}
	return out
}
