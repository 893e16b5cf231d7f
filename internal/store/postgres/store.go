// Package postgres provides the durable store: captured plans and the
// hash-chained audit ledger.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/warden/internal/domain"
)

type Store struct {
	pool   *pgxpool.Pool
	plans  *PlanRepo
	ledger *LedgerRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:   pool,
		plans:  NewPlanRepo(pool),
		ledger: NewLedgerRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Plans() domain.PlanRepository { return s.plans }
func (s *Store) Ledger() domain.Ledger        { return s.ledger }
