package chat

import (
	"slices"

	"github.com/fabfab/agentic-rag/rag"
)

// State is owned by the driver loop. Stages receive a copy and describe their
// changes with a Delta.
type State struct {
	RunID               string
	Question            string
	Route               rag.RouteDecision
	Documents           []rag.Document
	Variants            []string
	BatchResults        []rag.RetrievalResult
	StructuredQuery     string
	TranslationDeclined bool
	Generation          string
	HasGeneration       bool
	Grounded            rag.Verdict
	Answer              string
	Outcome             rag.Outcome
	TransformCycles     int
	RetryExhausted      bool
	Stages              []Stage
}

// Delta is a partial update. Nil fields are left untouched.
type Delta struct {
	Route               *rag.RouteDecision
	Documents           *[]rag.Document
	Variants            *[]string
	BatchResults        *[]rag.RetrievalResult
	StructuredQuery     *string
	TranslationDeclined *bool
	Generation          *string
	Grounded            *rag.Verdict
	Answer              *string
	Outcome             *rag.Outcome
	TransformCycles     *int
	RetryExhausted      *bool
}

func ptr[T any](v T) *T {
	return &v
}

func (s *State) apply(d Delta) {
	if d.Route != nil {
		s.Route = *d.Route
	}
	if d.Documents != nil {
		s.Documents = *d.Documents
	}
	if d.Variants != nil {
		s.Variants = *d.Variants
	}
	if d.BatchResults != nil {
		s.BatchResults = *d.BatchResults
	}
	if d.StructuredQuery != nil {
		s.StructuredQuery = *d.StructuredQuery
	}
	if d.TranslationDeclined != nil {
		s.TranslationDeclined = *d.TranslationDeclined
	}
	if d.Generation != nil {
		s.Generation = *d.Generation
		s.HasGeneration = true
	}
	if d.Grounded != nil {
		s.Grounded = *d.Grounded
	}
	if d.Answer != nil {
		s.Answer = *d.Answer
	}
	if d.Outcome != nil {
		s.Outcome = *d.Outcome
	}
	if d.TransformCycles != nil {
		s.TransformCycles = *d.TransformCycles
	}
	if d.RetryExhausted != nil {
		s.RetryExhausted = *d.RetryExhausted
	}
}

// view returns a copy whose slices do not alias the owner's.
func (s State) view() State {
	s.Documents = slices.Clone(s.Documents)
	s.Variants = slices.Clone(s.Variants)
	s.BatchResults = slices.Clone(s.BatchResults)
	s.Stages = slices.Clone(s.Stages)
	return s
}

func (s State) finalAnswer() rag.FinalAnswer {
	stages := make([]string, len(s.Stages))
	for i, stage := range s.Stages {
		stages[i] = string(stage)
	}
	return rag.FinalAnswer{
		Text:                s.Answer,
		Outcome:             s.Outcome,
		Route:               s.Route,
		RunID:               s.RunID,
		Stages:              stages,
		TransformCycles:     s.TransformCycles,
		RetryExhausted:      s.RetryExhausted,
		TranslationDeclined: s.TranslationDeclined,
	}
}
