package plans

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DBSource serves plans from the plans and plan_grants tables. The table
// contents are cached per revision; Invalidate bumps the revision token
// and forces a re-read on the next lookup.
type DBSource struct {
	db *sql.DB

	mu       sync.RWMutex
	index    map[string]Plan
	loaded   bool
	revision atomic.Uint64
}

// NewDBSource creates a source over db. The core treats the tables as
// read-only; administrators edit them through their own tooling.
func NewDBSource(db *sql.DB) *DBSource {
	return &DBSource{db: db}
}

// Plan returns the plan for id from the current revision.
func (d *DBSource) Plan(id string) (Plan, bool) {
	d.ensureLoaded()
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.index[id]
	return p, ok
}

// Version returns the current revision token.
func (d *DBSource) Version() string {
	return fmt.Sprintf("db#%d", d.revision.Load())
}

// Invalidate forces a re-read of the plan tables on the next lookup.
func (d *DBSource) Invalidate() {
	d.mu.Lock()
	d.loaded = false
	d.mu.Unlock()
}

func (d *DBSource) ensureLoaded() {
	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if loaded {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return
	}

	index, err := d.readPlans()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load plans from database; keeping previous revision")
		d.loaded = true
		return
	}

	d.index = index
	d.loaded = true
	d.revision.Add(1)
	log.Info().Int("plans", len(index)).Msg("Loaded plan configuration from database")
}

func (d *DBSource) readPlans() (map[string]Plan, error) {
	rows, err := d.db.Query(`SELECT id, name FROM plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	index := make(map[string]Plan)
	var order []string
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		index[p.ID] = p
		order = append(order, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}

	for _, id := range order {
		grants, err := d.readGrants(id)
		if err != nil {
			return nil, err
		}
		p := index[id]
		p.Grants = grants
		index[id] = p
	}
	return index, nil
}

func (d *DBSource) readGrants(planID string) ([]FeatureGrant, error) {
	rows, err := d.db.Query(`
		SELECT feature_id, enabled, limit_value
		FROM plan_grants
		WHERE plan_id = ?
		ORDER BY position, feature_id`, planID)
	if err != nil {
		return nil, fmt.Errorf("query grants for %s: %w", planID, err)
	}
	defer rows.Close()

	var grants []FeatureGrant
	for rows.Next() {
		var (
			g     FeatureGrant
			limit sql.NullInt64
		)
		if err := rows.Scan(&g.FeatureID, &g.Enabled, &limit); err != nil {
			return nil, fmt.Errorf("scan grant for %s: %w", planID, err)
		}
		if limit.Valid {
			g.Limit = LimitOf(limit.Int64)
		} else {
			g.Limit = Unlimited()
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants for %s: %w", planID, err)
	}
	return grants, nil
}
