// Package rag holds the domain types shared by the retrieval pipeline and the
// narrow capability interfaces its collaborators implement.
package rag

import "strings"

// Document is a single piece of retrieved evidence. Content is the identity
// used for de-duplication during rank fusion.
type Document struct {
	Content  string
	Source   string
	Metadata map[string]string
}

// RetrievalResult is the ranked output of one retrieval call. The rank of a
// document is its index plus one.
type RetrievalResult struct {
	Query     string
	Documents []Document
}

// Empty reports whether the result carries no documents.
func (r RetrievalResult) Empty() bool {
	return len(r.Documents) == 0
}

// FusedScore pairs a document with its accumulated reciprocal rank score.
type FusedScore struct {
	Document Document
	Score    float64
}

type RouteDecision string

const (
	RouteVectorStore RouteDecision = "vectorstore"
	RouteCypherDB    RouteDecision = "cypher_db"
	RouteWebSearch   RouteDecision = "websearch"
)

// Valid reports whether the decision is one of the three known routes.
func (r RouteDecision) Valid() bool {
	switch r {
	case RouteVectorStore, RouteCypherDB, RouteWebSearch:
		return true
	default:
		return false
	}
}

func (r RouteDecision) String() string {
	return string(r)
}

// ParseRouteDecision normalises a classifier label. Case, surrounding quotes
// and the separator between words are ignored ("Cypher DB", "web-search");
// anything else yields a RoutingError carrying the raw label.
func ParseRouteDecision(label string) (RouteDecision, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.Trim(normalized, "\"'`.")
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(normalized)

	switch normalized {
	case "vectorstore":
		return RouteVectorStore, nil
	case "cypherdb":
		return RouteCypherDB, nil
	case "websearch":
		return RouteWebSearch, nil
	default:
		return "", &RoutingError{Label: label}
	}
}

type Verdict string

const (
	VerdictYes Verdict = "yes"
	VerdictNo  Verdict = "no"
)

func (v Verdict) Yes() bool {
	return v == VerdictYes
}

// Review is the outcome of the final quality check on a grounded answer.
type Review struct {
	Answer   string
	Relevant bool
}

type Outcome string

const (
	OutcomeAnswered          Outcome = "answered"
	OutcomeGroundingRejected Outcome = "grounding_rejected"
	OutcomeReviewRejected    Outcome = "review_rejected"
)

// FinalAnswer is what a pipeline run hands back to its caller. Text is always
// either the reviewed answer or the configured fallback message.
type FinalAnswer struct {
	Text                string
	Outcome             Outcome
	Route               RouteDecision
	RunID               string
	Stages              []string
	TransformCycles     int
	RetryExhausted      bool
	TranslationDeclined bool
}
