package chat

import (
	"fmt"

	"github.com/fabfab/agentic-rag/rag"
)

type Stage string

const (
	StageRouter              Stage = "ROUTER"
	StageWebSearch           Stage = "WEB_SEARCH"
	StageVectorRetrieve      Stage = "VECTOR_RETRIEVE"
	StageCypherTranslate     Stage = "CYPHER_TRANSLATE"
	StageCypherRetrieve      Stage = "CYPHER_RETRIEVE"
	StageRelevanceGrade      Stage = "RELEVANCE_GRADE"
	StageQueryTransform      Stage = "QUERY_TRANSFORM"
	StageVectorRetrieveBatch Stage = "VECTOR_RETRIEVE_BATCH"
	StageFuse                Stage = "FUSE"
	StageGenerate            Stage = "GENERATE"
	StageGroundednessGrade   Stage = "GROUNDEDNESS_GRADE"
	StageQualityReview       Stage = "QUALITY_REVIEW"
	StageFallback            Stage = "FALLBACK"
	StageTerminal            Stage = "TERMINAL"
)

type Condition string

const (
	CondDone              Condition = "done"
	CondRouteVectorStore  Condition = "route_vectorstore"
	CondRouteCypherDB     Condition = "route_cypher_db"
	CondRouteWebSearch    Condition = "route_websearch"
	CondDocumentsRetained Condition = "documents_retained"
	CondAllFiltered       Condition = "all_filtered"
	CondRetryExhausted    Condition = "retry_exhausted"
	CondGrounded          Condition = "grounded"
	CondNotGrounded       Condition = "not_grounded"
)

type edge struct {
	from Stage
	cond Condition
}

// transitions is the complete state machine. Any (stage, condition) pair not
// listed here is a fatal error.
var transitions = map[edge]Stage{
	{StageRouter, CondRouteVectorStore}:          StageVectorRetrieve,
	{StageRouter, CondRouteCypherDB}:             StageCypherTranslate,
	{StageRouter, CondRouteWebSearch}:            StageWebSearch,
	{StageWebSearch, CondDone}:                   StageGenerate,
	{StageCypherTranslate, CondDone}:             StageCypherRetrieve,
	{StageCypherRetrieve, CondDone}:              StageGenerate,
	{StageVectorRetrieve, CondDone}:              StageRelevanceGrade,
	{StageRelevanceGrade, CondDocumentsRetained}: StageGenerate,
	{StageRelevanceGrade, CondAllFiltered}:       StageQueryTransform,
	{StageRelevanceGrade, CondRetryExhausted}:    StageGenerate,
	{StageQueryTransform, CondDone}:              StageVectorRetrieveBatch,
	{StageVectorRetrieveBatch, CondDone}:         StageFuse,
	{StageFuse, CondDone}:                        StageRelevanceGrade,
	{StageGenerate, CondDone}:                    StageGroundednessGrade,
	{StageGroundednessGrade, CondGrounded}:       StageQualityReview,
	{StageGroundednessGrade, CondNotGrounded}:    StageFallback,
	{StageQualityReview, CondDone}:               StageTerminal,
	{StageFallback, CondDone}:                    StageTerminal,
}

func next(from Stage, cond Condition) (Stage, error) {
	to, ok := transitions[edge{from, cond}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrNoTransition, from, cond)
	}
	return to, nil
}

// condition derives the outgoing condition of a stage from the merged state.
func condition(stage Stage, st State, maxCycles int) Condition {
	switch stage {
	case StageRouter:
		switch st.Route {
		case rag.RouteVectorStore:
			return CondRouteVectorStore
		case rag.RouteCypherDB:
			return CondRouteCypherDB
		case rag.RouteWebSearch:
			return CondRouteWebSearch
		default:
			return Condition("route_" + st.Route)
		}
	case StageRelevanceGrade:
		switch {
		case len(st.Documents) > 0:
			return CondDocumentsRetained
		case st.TransformCycles < maxCycles:
			return CondAllFiltered
		default:
			return CondRetryExhausted
		}
	case StageGroundednessGrade:
		if st.Grounded.Yes() {
			return CondGrounded
		}
		return CondNotGrounded
	default:
		return CondDone
	}
}

// maxSteps is the longest path through the table: three stages before the
// first grading, four per transform cycle and three after.
func maxSteps(maxCycles int) int {
	return 6 + 4*maxCycles
}
