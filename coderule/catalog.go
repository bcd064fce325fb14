/*
catalog.go - The rule catalog

PURPOSE:
  Holds the server-supplied code-generation rules for one session of use.
  The catalog is read-only once loaded: there are no mutation methods, the
  remote system of record owns the rules.

LOAD SEMANTICS:
  Load() replaces the catalog contents atomically. If the upstream call
  fails, the catalog keeps its previous state (stale-but-valid, or empty if
  never loaded) and the caller gets a FetchError. Retry is the caller's
  decision.

LOOKUPS:
  FindRule / FindGroup / FindStep are pure and case-sensitive. They return
  an explicit "not found" instead of panicking or throwing.

SEE ALSO:
  - types.go:     Rule/Group/Step definitions
  - selection.go: Consumes the catalog to drive the form state machine
*/
package coderule

import (
	"context"
	"sync"
)

// =============================================================================
// RULE SOURCE - Upstream collaborator
// =============================================================================

// RuleSource supplies the rule catalog. Implemented by the sqlite store in
// production and by in-memory fakes in tests.
type RuleSource interface {
	ListRules(ctx context.Context) ([]Rule, error)
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the in-memory view of the server-owned code rules.
type Catalog struct {
	source RuleSource

	mu     sync.RWMutex
	rules  []Rule
	loaded bool
}

// NewCatalog creates an empty catalog backed by the given source.
func NewCatalog(source RuleSource) *Catalog {
	return &Catalog{source: source}
}

// Load fetches the rules and replaces the catalog contents. On failure the
// previous contents are kept and a *FetchError is returned.
func (c *Catalog) Load(ctx context.Context) error {
	rules, err := c.source.ListRules(ctx)
	if err != nil {
		return &FetchError{Resource: "coa rules", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = rules
	c.loaded = true
	return nil
}

// Loaded reports whether Load has ever succeeded.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Reset discards the loaded rules. Used when a form session ends.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = nil
	c.loaded = false
}

// Rules returns a copy of the loaded rules in catalog order.
func (c *Catalog) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

// FindRule looks up a rule by its type code.
func (c *Catalog) FindRule(code string) (Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.Code == code {
			return r, true
		}
	}
	return Rule{}, false
}

// FindGroup looks up a group within a rule by group id (as string) or code.
func (c *Catalog) FindGroup(ruleCode, idOrCode string) (Group, bool) {
	rule, ok := c.FindRule(ruleCode)
	if !ok {
		return Group{}, false
	}
	return rule.FindGroup(idOrCode)
}

// FindStep looks up a step within a rule's group by its stable step id.
func (c *Catalog) FindStep(ruleCode, groupIDOrCode string, stepID int) (Step, bool) {
	group, ok := c.FindGroup(ruleCode, groupIDOrCode)
	if !ok {
		return Step{}, false
	}
	return group.FindStep(stepID)
}
