package auth

import (
	"context"

	"github.com/jackc/pgx/v5"

	"hrflow/internal/platform/querier"
)

// Store resolves permissions from the role_permissions table, which lets
// operators grant extra permissions without a deploy.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) HasPermission(ctx context.Context, roles []string, permission string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	var allowed bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM role_permissions
      WHERE role = ANY($1::text[]) AND permission = $2
    )
  `, roles, permission).Scan(&allowed)
	return allowed, err
}

// SyncDefaults inserts the built-in role grants. Existing rows are kept.
func (s *Store) SyncDefaults(ctx context.Context) error {
	batch := &pgx.Batch{}
	n := 0
	for role, perms := range RolePermissions {
		for _, perm := range perms {
			batch.Queue(`
        INSERT INTO role_permissions (role, permission)
        VALUES ($1, $2)
        ON CONFLICT (role, permission) DO NOTHING
      `, role, perm)
			n++
		}
	}
	results := s.DB.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}
