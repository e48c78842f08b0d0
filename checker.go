package hyperbatch

import (
	"context"
	"log/slog"
	"sync"
)

// Visibility answers which containers a viewer holds a permission on.
// Implementations must be safe for concurrent use when the projector runs
// with WithConcurrency > 1.
type Visibility interface {
	AllowedContainers(ctx context.Context, viewer Viewer, permission string) (ContainerSet, error)
}

// schemaValidation holds the process-wide validation state.
var schemaValidation sync.Once

// validateSchema checks once per process that the visibility function
// exists and logs a warning if it does not. It never fails.
func validateSchema(q Querier, logger *slog.Logger) {
	schemaValidation.Do(func() {
		var n int
		err := q.QueryRowContext(context.Background(),
			"SELECT COUNT(*) FROM allowed_containers(0, '__schema_check__')",
		).Scan(&n)
		if err == nil {
			return
		}
		switch sqlState(err) {
		case pgUndefinedFunction:
			logger.Warn("allowed_containers function not found, run 'hyperbatch migrate' to create it")
		case pgUndefinedTable:
			logger.Warn("visibility tables not found, run 'hyperbatch migrate' to create them")
		}
	})
}

// Checker resolves container visibility against PostgreSQL through the
// allowed_containers(viewer_id, permission) function installed by
// pgstore.Migrate.
//
// Checkers are lightweight and safe to create per request. The database
// handle can be *sql.DB, *sql.Tx, or *sql.Conn.
type Checker struct {
	q                  Querier
	decision           Decision
	useContextDecision bool
	logger             *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithDecision sets a decision override that bypasses database queries.
// DecisionAllow returns AllContainers for every permission, DecisionDeny an
// empty set.
func WithDecision(d Decision) CheckerOption {
	return func(c *Checker) {
		c.decision = d
	}
}

// WithContextDecision enables context-based decision overrides.
//
// Decision precedence when enabled:
//  1. Context decision (via WithDecisionContext)
//  2. Checker decision (via WithDecision)
//  3. Database query
func WithContextDecision() CheckerOption {
	return func(c *Checker) {
		c.useContextDecision = true
	}
}

// WithCheckerLogger sets the logger used for setup warnings.
func WithCheckerLogger(l *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = l
	}
}

// NewChecker creates a checker over *sql.DB, *sql.Tx, or *sql.Conn.
//
// On the first call with a non-nil Querier, NewChecker checks for the
// visibility function (once per process) and logs a warning when it is
// missing.
func NewChecker(q Querier, opts ...CheckerOption) *Checker {
	c := &Checker{
		q:        q,
		decision: DecisionUnset,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if q != nil && c.decision == DecisionUnset {
		validateSchema(q, c.logger)
	}

	return c
}

// AllowedContainers returns the containers on which viewer holds permission.
// Admins hold every permission on every active container; that rule lives in
// the SQL function so that it applies to every caller.
func (c *Checker) AllowedContainers(ctx context.Context, viewer Viewer, permission string) (ContainerSet, error) {
	if d := c.effectiveDecision(ctx); d != DecisionUnset {
		if d == DecisionAllow {
			return AllContainers(), nil
		}
		return NewContainerSet(), nil
	}

	rows, err := c.q.QueryContext(ctx,
		"SELECT container_id FROM allowed_containers($1, $2)",
		int64(viewer.ID), permission,
	)
	if err != nil {
		return ContainerSet{}, MapStoreError("allowed_containers", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return ContainerSet{}, MapStoreError("allowed_containers", err)
		}
		ids = append(ids, ID(id))
	}
	if err := rows.Err(); err != nil {
		return ContainerSet{}, MapStoreError("allowed_containers", err)
	}
	return NewContainerSet(ids...), nil
}

func (c *Checker) effectiveDecision(ctx context.Context) Decision {
	if c.useContextDecision {
		if d := GetDecisionContext(ctx); d != DecisionUnset {
			return d
		}
	}
	return c.decision
}

var _ Visibility = (*Checker)(nil)
