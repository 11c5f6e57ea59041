package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docufy/payment-core/internal/common"
)

// Kind discriminates catalog entry types.
type Kind string

const (
	KindDocument Kind = "document"
	KindPackage  Kind = "package"
)

// Entry is a server-side price catalog record. It is the sole source of truth
// for prices; client-submitted prices are only ever compared against it.
type Entry struct {
	ID       string
	Kind     Kind
	Price    common.Money
	Currency string
}

// Catalog is an immutable in-memory price lookup built once at startup.
type Catalog struct {
	entries  map[string]Entry
	currency string
}

func key(id string, kind Kind) string {
	return strings.TrimSpace(id) + "|" + string(kind)
}

// New builds a catalog from the provided entries.
func New(entries []Entry, currency string) *Catalog {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[key(e.ID, e.Kind)] = e
	}
	return &Catalog{entries: m, currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Lookup resolves an entry by id and kind.
func (c *Catalog) Lookup(id string, kind Kind) (Entry, bool) {
	e, ok := c.entries[key(id, kind)]
	return e, ok
}

// Currency returns the catalog's pricing currency.
func (c *Catalog) Currency() string { return c.currency }

// Len reports the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// LoadEntries reads all catalog entries from the database.
func LoadEntries(ctx context.Context, pool *pgxpool.Pool) ([]Entry, error) {
	rows, err := pool.Query(ctx, `SELECT id, kind, price, currency FROM catalog_entries`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Price, &e.Currency); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
