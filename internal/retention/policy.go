// Package retention deletes aged activity records according to a set of
// named policies, optionally archiving matching records first.
package retention

import (
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/carshare/pulse/internal/model"
)

// Conditions narrow a policy to a subset of records. An empty dimension
// matches everything on that dimension.
type Conditions struct {
	Severities       []model.Severity `toml:"severities"`
	Actions          []model.Action   `toml:"actions"`
	Resources        []string         `toml:"resources"`
	ExcludedActorIDs []string         `toml:"excluded_actor_ids"`
}

// Policy deletes records older than RetentionDays that match its conditions.
// With Archive set, matching records are written to the archive destination
// before deletion.
type Policy struct {
	Name          string     `toml:"name"`
	RetentionDays int        `toml:"retention_days"`
	Archive       bool       `toml:"archive"`
	Conditions    Conditions `toml:"conditions"`
}

// Specificity is the number of condition dimensions the policy constrains.
// More specific policies run first so they claim their records before a
// broader policy sweeps them up.
func (p Policy) Specificity() int {
	n := 0
	if len(p.Conditions.Severities) > 0 {
		n++
	}
	if len(p.Conditions.Actions) > 0 {
		n++
	}
	if len(p.Conditions.Resources) > 0 {
		n++
	}
	if len(p.Conditions.ExcludedActorIDs) > 0 {
		n++
	}
	return n
}

// Filter converts the policy into a store filter with the cutoff computed
// from now.
func (p Policy) Filter(now time.Time) model.ActivityFilter {
	return model.ActivityFilter{
		Severities:       p.Conditions.Severities,
		Actions:          p.Conditions.Actions,
		Resources:        p.Conditions.Resources,
		ExcludedActorIDs: p.Conditions.ExcludedActorIDs,
		Before:           now.AddDate(0, 0, -p.RetentionDays),
	}
}

type policyFile struct {
	Policies []Policy `toml:"policy"`
}

// LoadPolicies reads a TOML policy file, validates it, and returns the
// policies in evaluation order.
func LoadPolicies(path string) ([]Policy, error) {
	var pf policyFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	if err := validatePolicies(pf.Policies); err != nil {
		return nil, err
	}
	SortPolicies(pf.Policies)
	return pf.Policies, nil
}

// DefaultPolicies is the built-in policy set used when no policy file is
// present: drop DEBUG quickly, keep errors a full year with an archive copy,
// and everything else for six months.
func DefaultPolicies() []Policy {
	policies := []Policy{
		{
			Name:          "debug-short",
			RetentionDays: 30,
			Conditions:    Conditions{Severities: []model.Severity{model.SeverityDebug}},
		},
		{
			Name:          "errors-archived",
			RetentionDays: 365,
			Archive:       true,
			Conditions:    Conditions{Severities: []model.Severity{model.SeverityError, model.SeverityCritical}},
		},
		{
			Name:          "general",
			RetentionDays: 180,
		},
	}
	SortPolicies(policies)
	return policies
}

func validatePolicies(policies []Policy) error {
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return fmt.Errorf("policy with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate policy name %q", p.Name)
		}
		seen[p.Name] = true
		if p.RetentionDays < 1 {
			return fmt.Errorf("policy %q: retention_days must be at least 1", p.Name)
		}
		for _, s := range p.Conditions.Severities {
			if !s.IsValid() {
				return fmt.Errorf("policy %q: unknown severity %q", p.Name, s)
			}
		}
		for _, a := range p.Conditions.Actions {
			if !a.IsValid() {
				return fmt.Errorf("policy %q: unknown action %q", p.Name, a)
			}
		}
	}
	return nil
}

// SortPolicies orders policies by specificity descending, ties broken by
// name ascending, so evaluation order is deterministic.
func SortPolicies(policies []Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		si, sj := policies[i].Specificity(), policies[j].Specificity()
		if si != sj {
			return si > sj
		}
		return policies[i].Name < policies[j].Name
	})
}
