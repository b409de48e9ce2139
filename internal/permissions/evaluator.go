package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opexlabs/formscore/internal/models"
)

// Evaluator answers authorization questions from the current state of the
// grant store. It never mutates anything: a denied check is an expected
// outcome and is reported as false, while a store failure is a distinct
// error so infrastructure trouble is never mistaken for a denial.
type Evaluator struct {
	store Store
	now   func() time.Time
}

// NewEvaluator constructs an evaluator backed by the provided grant store.
func NewEvaluator(store Store) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("permission evaluator: store is required")
	}
	return &Evaluator{store: store, now: time.Now}, nil
}

// Check reports whether the user holds an effective grant that covers the
// requested scope at or above the required level. It short-circuits on the
// first satisfying grant.
func (e *Evaluator) Check(ctx context.Context, userID string, required Level, scope Scope) (bool, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, errors.New("permission evaluator: user id is required")
	}
	if !required.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidLevel, string(required))
	}

	grants, err := e.store.GetBySubject(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("permission evaluator: load grants: %w", err)
	}

	now := e.now()
	for i := range grants {
		g := &grants[i]
		if !g.EffectiveAt(now) {
			continue
		}
		if !Level(g.Level).AtLeast(required) {
			continue
		}
		if GrantScope(g).Matches(scope) {
			return true, nil
		}
	}

	return false, nil
}

// HighestLevel returns the maximum level among the user's effective grants,
// irrespective of scope. The boolean is false when no effective grant exists.
func (e *Evaluator) HighestLevel(ctx context.Context, userID string) (Level, bool, error) {
	ctx = ensureContext(ctx)

	grants, err := e.store.GetBySubject(ctx, strings.TrimSpace(userID))
	if err != nil {
		return "", false, fmt.Errorf("permission evaluator: load grants: %w", err)
	}

	now := e.now()
	var (
		highest Level
		found   bool
	)
	for i := range grants {
		g := &grants[i]
		if !g.EffectiveAt(now) {
			continue
		}
		level := Level(g.Level)
		if !level.Valid() {
			continue
		}
		if !found || level.AtLeast(highest) {
			highest = level
			found = true
		}
	}

	return highest, found, nil
}

// IsUnrestrictedAdmin reports whether the user holds an effective admin grant
// over the maximal (nil, nil) scope, meaning full system authority.
func (e *Evaluator) IsUnrestrictedAdmin(ctx context.Context, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	grants, err := e.store.GetBySubject(ctx, strings.TrimSpace(userID))
	if err != nil {
		return false, fmt.Errorf("permission evaluator: load grants: %w", err)
	}

	now := e.now()
	for i := range grants {
		g := &grants[i]
		if g.EffectiveAt(now) && Level(g.Level) == LevelAdmin && GrantScope(g).IsUnrestricted() {
			return true, nil
		}
	}

	return false, nil
}

// GrantFilters narrows ListEffectiveGrants results. A set Company or Category
// keeps grants whose dimension covers the value (exact match or unrestricted),
// mirroring how scoped queries resolve. Level filters for an exact level.
type GrantFilters struct {
	Company  *string
	Category *string
	Level    Level
}

// ListEffectiveGrants returns the user's currently effective grants for audit
// and listing UIs, newest first as delivered by the store.
func (e *Evaluator) ListEffectiveGrants(ctx context.Context, userID string, filters GrantFilters) ([]models.PermissionGrant, error) {
	ctx = ensureContext(ctx)

	grants, err := e.store.GetBySubject(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("permission evaluator: load grants: %w", err)
	}

	now := e.now()
	result := make([]models.PermissionGrant, 0, len(grants))
	for i := range grants {
		g := &grants[i]
		if !g.EffectiveAt(now) {
			continue
		}
		if filters.Level != "" && Level(g.Level) != filters.Level {
			continue
		}
		if filters.Company != nil && !dimensionMatches(g.Company, filters.Company) {
			continue
		}
		if filters.Category != nil && !dimensionMatches(g.Category, filters.Category) {
			continue
		}
		result = append(result, *g)
	}

	return result, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
