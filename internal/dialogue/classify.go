// Package dialogue turns free-form model output into typed actions.
//
// Responses are classified by the tags they carry. Tags are matched
// case-insensitively in a fixed priority order, so a response that contains
// both a [CODE] block and a [Final Answer] is treated as a final answer.
package dialogue

import (
	"regexp"

	"github.com/aretw0/tabloop/pkg/domain"
)

type tagRule struct {
	kind    domain.ActionKind
	pattern *regexp.Regexp
}

// rules are evaluated in order; the first match wins.
var rules = []tagRule{
	{domain.ActionFinalAnswer, regexp.MustCompile(`(?i)\[final answer\]`)},
	{domain.ActionCode, regexp.MustCompile(`(?i)\[code\]`)},
	{domain.ActionThink, regexp.MustCompile(`(?i)\[(think|reflect)\]`)},
}

// Classify returns the action kind of a model response.
func Classify(response string) domain.ActionKind {
	for _, r := range rules {
		if r.pattern.MatchString(response) {
			return r.kind
		}
	}
	return domain.ActionUnknown
}

// Parse classifies a response into an Action for the given round.
func Parse(round int, response string) domain.Action {
	return domain.Action{Round: round, Kind: Classify(response), Raw: response}
}
