package db

import (
	"context"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun           *bun.DB
	MaxTxAttempts int
}

// Queries is the event data access bound to one transaction or handle.
type Queries struct {
	idb bun.IDB
}

// NewQueries binds event queries to idb, typically a transaction owned by
// another aggregate's unit of work.
func NewQueries(idb bun.IDB) *Queries {
	return &Queries{idb: idb}
}

func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, q *Queries) error) error {
	return database.RunInTx(ctx, d.Bun, d.MaxTxAttempts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Queries{idb: tx})
	})
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return NewQueries(d.Bun).GetEvent(ctx, id)
}

// GetEvent returns sql.ErrNoRows when the event does not exist.
func (q *Queries) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := q.idb.NewSelect().
		Model(&ev).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (q *Queries) InsertEvent(ctx context.Context, ev *models.Event) error {
	_, err := q.idb.NewInsert().Model(ev).Exec(ctx)
	return err
}

// UpdateSeats writes available_seats guarded by the version ev was read with.
func (q *Queries) UpdateSeats(ctx context.Context, ev *models.Event, now time.Time) error {
	readVersion := ev.Version
	ev.Version = readVersion + 1
	ev.UpdatedAt = now

	res, err := q.idb.NewUpdate().
		Model(ev).
		Column("available_seats", "version", "updated_at").
		WherePK().
		Where("version = ?", readVersion).
		Exec(ctx)
	if err == nil {
		err = database.CheckAffected(res, "event")
	}
	if err != nil {
		ev.Version = readVersion
	}
	return err
}
