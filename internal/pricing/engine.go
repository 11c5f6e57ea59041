package pricing

import "github.com/docufy/payment-core/internal/common"

// Schedule is the trademark filing fee schedule in minor units. The base fee
// covers the first IncludedClasses nice classes; every class beyond that adds
// ClassFee. Collective and certification marks use the higher tier.
type Schedule struct {
	BaseFee            common.Money
	ClassFee           common.Money
	PriorityFee        common.Money
	CollectiveBaseFee  common.Money
	CollectiveClassFee common.Money
	IncludedClasses    int
}

// Quote is an immutable pricing snapshot computed once at order creation.
type Quote struct {
	NiceClassCount     int          `json:"niceClassCount"`
	PriorityClaimCount int          `json:"priorityClaimCount"`
	Collective         bool         `json:"collective"`
	Subtotal           common.Money `json:"subtotal"`
	VAT                common.Money `json:"vat"`
	Total              common.Money `json:"total"`
}

// Price computes the filing fee for the given class count, priority claims and
// mark type. Filing fees are pass-through government charges, so no VAT is
// applied. Only the final sum is ever rounded; all inputs are already minor
// units.
func (s Schedule) Price(niceClassCount, priorityClaimCount int, collective bool) Quote {
	if niceClassCount < 1 {
		niceClassCount = 1
	}
	if priorityClaimCount < 0 {
		priorityClaimCount = 0
	}
	included := s.IncludedClasses
	if included <= 0 {
		included = 3
	}

	base := s.BaseFee
	perClass := s.ClassFee
	if collective {
		base = s.CollectiveBaseFee
		perClass = s.CollectiveClassFee
	}

	extra := niceClassCount - included
	if extra < 0 {
		extra = 0
	}
	subtotal := base + common.Money(extra)*perClass + common.Money(priorityClaimCount)*s.PriorityFee

	return Quote{
		NiceClassCount:     niceClassCount,
		PriorityClaimCount: priorityClaimCount,
		Collective:         collective,
		Subtotal:           subtotal,
		VAT:                0,
		Total:              subtotal,
	}
}
