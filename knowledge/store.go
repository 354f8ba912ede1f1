package knowledge

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store binds the package functions to one driver.
type Store struct {
	driver neo4j.DriverWithContext
}

func NewStore(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

func (s *Store) SyncDocument(ctx context.Context, doc Document) error {
	return SyncDocument(ctx, s.driver, doc)
}

func (s *Store) SyncRecords(ctx context.Context, records Records) (int, error) {
	return SyncRecords(ctx, s.driver, records)
}

func (s *Store) Purge(ctx context.Context, recordLabels ...string) error {
	return Purge(ctx, s.driver, recordLabels...)
}
