// Package persistence stores configurator sessions across restarts using the
// browser app's storage format.
package persistence

import (
	"context"

	"github.com/rueckwand/configurator/internal/models"
)

// Store loads and saves session snapshots.
type Store interface {
	// Load returns the stored session, or ok=false when nothing is stored.
	Load(ctx context.Context, sessionID string) (s *models.Session, ok bool, err error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// NullStore keeps nothing. It is used when persistence is disabled.
type NullStore struct{}

func (NullStore) Load(context.Context, string) (*models.Session, bool, error) { return nil, false, nil }
func (NullStore) Save(context.Context, *models.Session) error                 { return nil }
func (NullStore) Delete(context.Context, string) error                        { return nil }
func (NullStore) Close() error                                                { return nil }
