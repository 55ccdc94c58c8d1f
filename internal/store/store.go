// Package store persists imported products and import run history in
// PostgreSQL via pgx. It implements core.RecordSink and core.RunRecorder.
//
// Schema lives in schema.sql next to this file.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castlebay/importsvc/internal/core"
)

// productColumns is the insert column list for the products table, in the
// order buildProductInsert emits arguments.
var productColumns = []string{
	"owner_id",
	"import_id",
	"name",
	"price",
	"cost_price",
	"description",
	"sku",
	"category",
	"brand",
	"image_url",
	"stock_quantity",
	"weight",
	"tags",
}

// Store wraps a pgx connection pool with the queries the import service
// needs.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertBatch inserts all records in a single transaction. Any failure
// rolls back the whole batch so a batch either lands completely or not
// at all.
func (s *Store) InsertBatch(ctx context.Context, ownerID uuid.UUID, importID string, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}

	query, args, err := buildProductInsert(ownerID, importID, records)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// buildProductInsert renders one multi-row INSERT for the batch. Keeping
// the batch in a single statement means a single round trip per batch.
func buildProductInsert(ownerID uuid.UUID, importID string, records []core.Record) (string, []any, error) {
	importUUID, err := uuid.Parse(importID)
	if err != nil {
		return "", nil, fmt.Errorf("invalid import ID %q: %w", importID, err)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO products (")
	sb.WriteString(strings.Join(productColumns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(productColumns))
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range productColumns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+j+1)
		}
		sb.WriteByte(')')

		args = append(args,
			ownerID,
			importUUID,
			fieldString(r, core.FieldName),
			fieldFloat(r, core.FieldPrice),
			fieldFloatPtr(r, core.FieldCostPrice),
			toPgText(fieldString(r, core.FieldDescription)),
			toPgText(fieldString(r, core.FieldSKU)),
			toPgText(fieldString(r, core.FieldCategory)),
			toPgText(fieldString(r, core.FieldBrand)),
			toPgText(firstImage(r)),
			fieldInt(r, core.FieldStock),
			fieldFloat(r, core.FieldWeight),
			fieldList(r, core.FieldTags),
		)
	}

	return sb.String(), args, nil
}

func fieldString(r core.Record, key string) string {
	v, _ := r.Fields[key].(string)
	return v
}

func fieldFloat(r core.Record, key string) float64 {
	v, _ := r.Fields[key].(float64)
	return v
}

// fieldFloatPtr returns nil when the field is absent so the column stays
// NULL instead of a misleading zero.
func fieldFloatPtr(r core.Record, key string) *float64 {
	v, ok := r.Fields[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

func fieldInt(r core.Record, key string) int {
	v, _ := r.Fields[key].(int)
	return v
}

func fieldList(r core.Record, key string) []string {
	v, _ := r.Fields[key].([]string)
	return v
}

func firstImage(r core.Record) string {
	images := fieldList(r, core.FieldImages)
	if len(images) == 0 {
		return ""
	}
	return images[0]
}
