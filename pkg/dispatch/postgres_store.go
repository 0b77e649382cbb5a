package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/dialbill/pkg/pg"
)

// PostgresStore is the relational ActionStore and Claimer. A claim is a row
// in scheduled_action_claims; the primary key on (action_id, flag) decides
// the winner.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ ActionStore = (*PostgresStore)(nil)
	_ Claimer     = (*PostgresStore)(nil)
)

// NewPostgresStore expects the schema applied by pg.Migrate.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

const selectActions = `
SELECT a.id, a.tenant_id, a.recipient, a.recipient_name, a.starts_at,
       a.time_zone, a.active, a.created_at,
       COALESCE(array_agg(c.flag) FILTER (WHERE c.flag IS NOT NULL), '{}')
FROM scheduled_actions a
LEFT JOIN scheduled_action_claims c ON c.action_id = a.id
`

func (s *PostgresStore) Create(ctx context.Context, a *Action) error {
	if a == nil || strings.TrimSpace(a.ID) == "" {
		return ErrInvalidAction
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO scheduled_actions (id, tenant_id, recipient, recipient_name, starts_at, time_zone, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.TenantID, a.Recipient, a.RecipientName, a.StartsAt.UTC(), a.TimeZone, a.Active, createdAt)
		if err != nil {
			return err
		}
		for flag, claimed := range a.Claims {
			if !claimed {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO scheduled_action_claims (action_id, flag, claimed_at) VALUES ($1, $2, $3)`,
				a.ID, string(flag), createdAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrActionExists
		}
		return fmt.Errorf("insert scheduled action: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Action, error) {
	rows, err := s.pool.Query(ctx, selectActions+`WHERE a.id = $1 GROUP BY a.id`, id)
	if err != nil {
		return nil, fmt.Errorf("get scheduled action: %w", err)
	}
	actions, err := collectActions(rows)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, ErrActionNotFound
	}
	return actions[0], nil
}

func (s *PostgresStore) ListActive(ctx context.Context, from, to time.Time) ([]*Action, error) {
	rows, err := s.pool.Query(ctx, selectActions+`
WHERE a.active AND a.starts_at >= $1 AND a.starts_at <= $2
GROUP BY a.id
ORDER BY a.starts_at`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list scheduled actions: %w", err)
	}
	return collectActions(rows)
}

// Claim inserts the claim row. A conflict means someone else holds it; a
// foreign key violation means the action does not exist.
func (s *PostgresStore) Claim(ctx context.Context, actionID string, flag Flag) (bool, error) {
	if !flag.Valid() {
		return false, ErrInvalidFlag
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO scheduled_action_claims (action_id, flag, claimed_at)
VALUES ($1, $2, $3)
ON CONFLICT (action_id, flag) DO NOTHING`, actionID, string(flag), s.now().UTC())
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return false, ErrActionNotFound
		}
		return false, fmt.Errorf("claim %s: %w", flag, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Revert(ctx context.Context, actionID string, flag Flag) error {
	if !flag.Valid() {
		return ErrInvalidFlag
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM scheduled_action_claims WHERE action_id = $1 AND flag = $2`, actionID, string(flag))
	if err != nil {
		return fmt.Errorf("revert %s: %w", flag, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var found bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scheduled_actions WHERE id = $1)`, actionID).Scan(&found); err != nil {
		return fmt.Errorf("revert %s: %w", flag, err)
	}
	if !found {
		return ErrActionNotFound
	}
	return nil
}

func collectActions(rows pgx.Rows) ([]*Action, error) {
	defer rows.Close()

	var out []*Action
	for rows.Next() {
		var (
			a     Action
			flags []string
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Recipient, &a.RecipientName, &a.StartsAt,
			&a.TimeZone, &a.Active, &a.CreatedAt, &flags); err != nil {
			return nil, fmt.Errorf("scan scheduled action: %w", err)
		}
		if len(flags) > 0 {
			a.Claims = make(map[Flag]bool, len(flags))
			for _, f := range flags {
				a.Claims[Flag(f)] = true
			}
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read scheduled actions: %w", err)
	}
	return out, nil
}
