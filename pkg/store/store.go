// Package store persists API profiles. The core only depends on the
// ProfileStore interface; the Postgres implementation adapts the profile
// record to a single table with JSONB columns for the catalog maps.
package store

import (
	"github.com/toolbridge/toolbridge/pkg/models"
)

// ProfileStore is the persistence boundary for API profiles. Round-tripping
// a profile through a store must preserve the enabled, operations, and
// tool-name maps exactly; runtime-only state (server handles, log rings) is
// never stored.
type ProfileStore interface {
	Get(name string) (*models.APIProfile, error)
	Put(profile *models.APIProfile) error
	List() ([]*models.APIProfile, error)
	Delete(name string) error
}
