package database

import (
	"context"
	"fmt"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

// Models lists every table the service owns, parents first.
func Models() []interface{} {
	return []interface{}{
		(*models.Event)(nil),
		(*models.Order)(nil),
		(*models.OrderLineItem)(nil),
		(*models.EventRegistration)(nil),
	}
}

// CreateSchema creates the tables straight from the bun models. Postgres
// deployments use the SQL migrations instead; this serves sqlite and tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// DropSchema drops the tables in reverse dependency order.
func DropSchema(ctx context.Context, db *bun.DB) error {
	all := Models()
	for i := len(all) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(all[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", all[i], err)
		}
	}
	return nil
}
