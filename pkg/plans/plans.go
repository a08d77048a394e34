// Package plans defines the plan and feature-grant contracts used for
// entitlement resolution.
//
// Plans are data, not code: administrators edit the plan→grant mapping in
// the backing store at any time, so feature ids are plain strings and the
// resolver works against an abstract Source. New feature ids require no
// changes here.
package plans

import "encoding/json"

// Well-known feature ids for the built-in content domains. These are a
// convenience only; the resolver accepts any id the backing store defines.
const (
	FeatureBlog              = "blog"
	FeatureEvents            = "events"
	FeatureAwards            = "awards"
	FeatureFAQ               = "faq"
	FeatureNewsletter        = "newsletter"
	FeatureContactForms      = "contact_forms"
	FeatureAdvancedAnalytics = "advanced_analytics"
)

// PlanFree is the sentinel plan id for users without a paid plan.
const PlanFree = "free"

// FeatureGrant is one (feature, enabled, limit) tuple scoped to a plan.
type FeatureGrant struct {
	FeatureID string `json:"featureId"`
	Enabled   bool   `json:"enabled"`
	Limit     Limit  `json:"limit"`
}

// UnmarshalJSON defaults an absent limit to unlimited. A grant that
// enables a feature without naming a limit places no cap on it.
func (g *FeatureGrant) UnmarshalJSON(data []byte) error {
	type alias struct {
		FeatureID string `json:"featureId"`
		Enabled   bool   `json:"enabled"`
		Limit     *Limit `json:"limit"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	g.FeatureID = a.FeatureID
	g.Enabled = a.Enabled
	if a.Limit != nil {
		g.Limit = *a.Limit
	} else {
		g.Limit = Unlimited()
	}
	return nil
}

// Plan is an immutable snapshot of one plan and its ordered grants.
// Resolution always consumes a whole snapshot; plans are never patched
// field by field.
type Plan struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Grants []FeatureGrant `json:"grants"`
}
