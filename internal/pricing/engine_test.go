package pricing

import "testing"

var testSchedule = Schedule{
	BaseFee:            120_000,
	ClassFee:           15_000,
	PriorityFee:        10_000,
	CollectiveBaseFee:  240_000,
	CollectiveClassFee: 30_000,
	IncludedClasses:    3,
}

func TestPriceExtraClasses(t *testing.T) {
	// 5 classes is 2 over the 3-class allowance.
	q := testSchedule.Price(5, 0, false)
	want := int64(120_000 + 2*15_000)
	if q.Subtotal != want {
		t.Fatalf("subtotal: want %d got %d", want, q.Subtotal)
	}
	if q.VAT != 0 {
		t.Fatalf("filing fees carry no VAT, got %d", q.VAT)
	}
	if q.Total != q.Subtotal {
		t.Fatalf("total %d should equal subtotal %d", q.Total, q.Subtotal)
	}
}

func TestPriceWithinAllowance(t *testing.T) {
	for classes := 1; classes <= 3; classes++ {
		q := testSchedule.Price(classes, 0, false)
		if q.Total != testSchedule.BaseFee {
			t.Fatalf("%d classes: want base fee %d got %d", classes, testSchedule.BaseFee, q.Total)
		}
	}
}

func TestPricePriorityClaims(t *testing.T) {
	q := testSchedule.Price(2, 3, false)
	want := int64(120_000 + 3*10_000)
	if q.Total != want {
		t.Fatalf("want %d got %d", want, q.Total)
	}
}

func TestPriceCollectiveTier(t *testing.T) {
	q := testSchedule.Price(4, 1, true)
	want := int64(240_000 + 1*30_000 + 1*10_000)
	if q.Total != want {
		t.Fatalf("want %d got %d", want, q.Total)
	}
	if !q.Collective {
		t.Fatal("quote should record the collective flag")
	}
}

func TestPriceClampsInvalidInput(t *testing.T) {
	q := testSchedule.Price(0, -2, false)
	if q.NiceClassCount != 1 || q.PriorityClaimCount != 0 {
		t.Fatalf("inputs not clamped: %+v", q)
	}
	if q.Total != testSchedule.BaseFee {
		t.Fatalf("want base fee %d got %d", testSchedule.BaseFee, q.Total)
	}
}
