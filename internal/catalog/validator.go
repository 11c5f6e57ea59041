package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/docufy/payment-core/internal/common"
)

// SubmittedItem is a client-submitted order line. The price it carries is
// untrusted and only used for mismatch reporting.
type SubmittedItem struct {
	ID       string          `json:"id" validate:"required"`
	Type     string          `json:"type" validate:"required,oneof=document package"`
	Name     string          `json:"name"`
	Price    common.Money    `json:"-"`
	FormData json.RawMessage `json:"formData,omitempty"`
}

// ValidatedItem is an order line with the price copied from the catalog at
// validation time.
type ValidatedItem struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Price    common.Money    `json:"price"`
	FormData json.RawMessage `json:"formData,omitempty"`
}

// Result carries the outcome of validating a submitted item set.
type Result struct {
	Valid          bool
	Items          []ValidatedItem
	ExpectedAmount common.Money
	ExpectedVAT    common.Money
	ExpectedTotal  common.Money
	Errors         []string
}

// Validate resolves every submitted item against the catalog and computes the
// expected totals. It is pure: no I/O, no side effects. All mismatches are
// collected so the caller can reject the whole order with a single response.
//
// The catalog price, never the client price, is accumulated into the expected
// amount. VAT and total are computed once over the accumulated base rather
// than per line, so rounding drift cannot compound.
func (c *Catalog) Validate(items []SubmittedItem, vatRateBps int, toleranceMinor common.Money) Result {
	res := Result{Valid: true}
	if len(items) == 0 {
		return Result{Valid: false, Errors: []string{"order contains no items"}}
	}
	for _, item := range items {
		entry, ok := c.Lookup(item.ID, Kind(item.Type))
		if !ok {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("unknown item %s", item.ID))
			continue
		}
		if common.AbsDiff(item.Price, entry.Price) > toleranceMinor {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf(
				"price mismatch for %s: submitted %s, expected %s",
				item.ID, common.FormatMinor(item.Price), common.FormatMinor(entry.Price)))
		}
		res.Items = append(res.Items, ValidatedItem{
			ID:       item.ID,
			Type:     item.Type,
			Name:     item.Name,
			Price:    entry.Price,
			FormData: item.FormData,
		})
		res.ExpectedAmount += entry.Price
	}
	res.ExpectedVAT = common.VATOf(res.ExpectedAmount, vatRateBps)
	res.ExpectedTotal = res.ExpectedAmount + res.ExpectedVAT
	return res
}
