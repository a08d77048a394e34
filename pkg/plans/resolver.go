package plans

// Resolver is the canonical entitlement resolver used by runtime surfaces.
// It is deterministic: identical (planID, source version) pairs produce
// identical grant ordering.
type Resolver struct {
	source Source
}

// NewResolver creates a resolver over the given source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the ordered grants for planID. An unrecognized plan id
// yields an empty, non-nil grant set rather than an error, so callers can
// keep serving the mandatory baseline. Duplicate feature ids in the source
// data are collapsed first-wins, preserving exactly one grant per feature.
func (r *Resolver) Resolve(planID string) []FeatureGrant {
	if r == nil || r.source == nil {
		return []FeatureGrant{}
	}

	plan, ok := r.source.Plan(planID)
	if !ok {
		return []FeatureGrant{}
	}

	grants := make([]FeatureGrant, 0, len(plan.Grants))
	seen := make(map[string]bool, len(plan.Grants))
	for _, g := range plan.Grants {
		if seen[g.FeatureID] {
			continue
		}
		seen[g.FeatureID] = true
		grants = append(grants, g)
	}
	return grants
}

// Grants resolves planID into a GrantSet for repeated lookups.
func (r *Resolver) Grants(planID string) GrantSet {
	grants := r.Resolve(planID)
	index := make(map[string]int, len(grants))
	for i, g := range grants {
		index[g.FeatureID] = i
	}
	version := ""
	if r != nil && r.source != nil {
		version = r.source.Version()
	}
	return GrantSet{grants: grants, index: index, version: version}
}

// Version reports the configuration revision of the underlying source.
func (r *Resolver) Version() string {
	if r == nil || r.source == nil {
		return ""
	}
	return r.source.Version()
}

// GrantSet is one resolved entitlement snapshot, passed by value to every
// consumer of a pass so all of them see the same grants.
type GrantSet struct {
	grants  []FeatureGrant
	index   map[string]int
	version string
}

// Enabled reports whether featureID is granted and enabled.
func (s GrantSet) Enabled(featureID string) bool {
	i, ok := s.index[featureID]
	if !ok {
		return false
	}
	return s.grants[i].Enabled
}

// Limit returns the cap for resourceID. Features that are absent or
// disabled report a zero limit; enabled grants without an explicit limit
// report unlimited (set at parse time).
func (s GrantSet) Limit(resourceID string) Limit {
	i, ok := s.index[resourceID]
	if !ok || !s.grants[i].Enabled {
		return LimitOf(0)
	}
	return s.grants[i].Limit
}

// Grants returns the ordered grant list. The slice is a copy; mutating it
// does not affect the set.
func (s GrantSet) Grants() []FeatureGrant {
	out := make([]FeatureGrant, len(s.grants))
	copy(out, s.grants)
	return out
}

// EnabledFeatures returns the ids of all enabled grants in grant order.
func (s GrantSet) EnabledFeatures() []string {
	out := make([]string, 0, len(s.grants))
	for _, g := range s.grants {
		if g.Enabled {
			out = append(out, g.FeatureID)
		}
	}
	return out
}

// Version identifies the configuration revision this set was resolved from.
func (s GrantSet) Version() string {
	return s.version
}
