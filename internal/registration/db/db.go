package db

import (
	"context"
	"time"

	"ms-storefront/internal/database"
	eventsdb "ms-storefront/internal/events/db"
	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun           *bun.DB
	MaxTxAttempts int
}

// Queries is the registration data access bound to one transaction. Events
// shares the same transaction so seat changes commit with the registration.
type Queries struct {
	idb    bun.IDB
	Events *eventsdb.Queries
}

func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, q *Queries) error) error {
	return database.RunInTx(ctx, d.Bun, d.MaxTxAttempts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Queries{idb: tx, Events: eventsdb.NewQueries(tx)})
	})
}

func (d *DB) GetRegistrationByID(ctx context.Context, id string) (*models.EventRegistration, error) {
	return (&Queries{idb: d.Bun}).GetRegistration(ctx, id)
}

// ListByEvent returns an event's registrations in request order.
func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	var regs []models.EventRegistration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// GetRegistration returns sql.ErrNoRows when the registration does not exist.
func (q *Queries) GetRegistration(ctx context.Context, id string) (*models.EventRegistration, error) {
	var reg models.EventRegistration
	err := q.idb.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (q *Queries) InsertRegistration(ctx context.Context, reg *models.EventRegistration) error {
	_, err := q.idb.NewInsert().Model(reg).Exec(ctx)
	return err
}

// UpdateRegistration writes columns plus version and updated_at, guarded by
// the version reg was read with.
func (q *Queries) UpdateRegistration(ctx context.Context, reg *models.EventRegistration, now time.Time, columns ...string) error {
	readVersion := reg.Version
	reg.Version = readVersion + 1
	reg.UpdatedAt = now

	res, err := q.idb.NewUpdate().
		Model(reg).
		Column(append(columns, "version", "updated_at")...).
		WherePK().
		Where("version = ?", readVersion).
		Exec(ctx)
	if err == nil {
		err = database.CheckAffected(res, "registration")
	}
	if err != nil {
		reg.Version = readVersion
	}
	return err
}
