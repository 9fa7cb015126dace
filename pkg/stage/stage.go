// Package stage defines the pipeline stages run by the orchestrator for one turn.
//
// Every stage reads and writes the session state through its typed accessors and reports
// what it wrote in the StateDelta of the events it yields. Event sequences are finite and
// cannot be restarted.
package stage

import (
	"context"
	"iter"

	"backoffice/pkg/agent/llm"
	"backoffice/pkg/session"
)

// Kind identifies the role of a stage in the pipeline.
type Kind int

const (
	KindClassifier Kind = iota
	KindAuthChallenge
	KindDomainResponder
	KindGeneralResponder
	KindPolisher
)

// Kinds lists every kind in pipeline order.
var Kinds = []Kind{KindClassifier, KindAuthChallenge, KindDomainResponder, KindGeneralResponder, KindPolisher}

func (k Kind) String() string {
	switch k {
	case KindClassifier:
		return "classifier"
	case KindAuthChallenge:
		return "auth_challenge"
	case KindDomainResponder:
		return "domain_responder"
	case KindGeneralResponder:
		return "general_responder"
	case KindPolisher:
		return "polisher"
	default:
		return "unknown"
	}
}

// Invocation is the input of one stage run.
//
//nolint:govet // fieldalignment: readability over packing
type Invocation struct {
	SessionID string
	UserID    string
	Message   string
	State     *session.State
	History   []llm.CompletionMessage
}

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Kind() Kind
	Run(ctx context.Context, inv *Invocation) iter.Seq2[*Event, error]
}
