package hyperbatch

import "context"

// Decision allows bypassing visibility queries for admin tools and tests.
// Decisions are set at Checker construction time via WithDecision, making
// the bypass explicit and visible in code.
type Decision int

type decisionKey struct{}

const (
	// DecisionUnset means no override - query the database.
	DecisionUnset Decision = iota

	// DecisionAllow grants every permission on every container.
	DecisionAllow

	// DecisionDeny grants nothing; every entity renders as an empty document.
	DecisionDeny
)

// WithDecisionContext returns a new context carrying decision. The Checker
// only consults it when built with WithContextDecision.
func WithDecisionContext(ctx context.Context, decision Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, decision)
}

// GetDecisionContext retrieves the decision from context.
// Returns DecisionUnset if no decision is set.
func GetDecisionContext(ctx context.Context) Decision {
	if decision, ok := ctx.Value(decisionKey{}).(Decision); ok {
		return decision
	}
	return DecisionUnset
}
