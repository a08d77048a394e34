package plans

// Source provides plan data from any backing store.
// Implementation A: FileSource (admin-edited JSON document).
// Implementation B: DBSource (plans/plan_grants tables in SQLite).
type Source interface {
	// Plan returns the plan snapshot for id, or false when the id is not
	// part of the current configuration.
	Plan(id string) (Plan, bool)

	// Version identifies the configuration revision the source currently
	// serves. It changes whenever the backing data is invalidated, so a
	// (planID, Version) pair fully determines a resolution result.
	Version() string
}
