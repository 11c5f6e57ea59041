package common

import "testing"

func TestParseDecimalMinor(t *testing.T) {
	cases := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{"30.00", 3000, false},
		{"29.50", 2950, false},
		{"15", 1500, false},
		{"0.01", 1, false},
		{"-2.50", -250, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDecimalMinor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDecimalMinor(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimalMinor(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDecimalMinor(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	cases := []struct {
		in   Money
		want string
	}{
		{3000, "30.00"},
		{2950, "29.50"},
		{1, "0.01"},
		{0, "0.00"},
		{-250, "-2.50"},
	}
	for _, tc := range cases {
		if got := FormatMinor(tc.in); got != tc.want {
			t.Errorf("FormatMinor(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestVATOfRoundsHalfUp(t *testing.T) {
	cases := []struct {
		base Money
		bps  int
		want Money
	}{
		{2500, 2000, 500},
		{99, 2000, 20}, // 19.8 rounds up
		{98, 2000, 20}, // 19.6 rounds up
		{1, 2000, 0},   // 0.2 rounds down
		{3, 2000, 1},   // 0.6 rounds up
		{2500, 0, 0},
		{0, 2000, 0},
	}
	for _, tc := range cases {
		if got := VATOf(tc.base, tc.bps); got != tc.want {
			t.Errorf("VATOf(%d, %d) = %d, want %d", tc.base, tc.bps, got, tc.want)
		}
	}
}

func TestAbsDiff(t *testing.T) {
	if AbsDiff(3000, 2950) != 50 || AbsDiff(2950, 3000) != 50 {
		t.Fatal("AbsDiff not symmetric")
	}
	if AbsDiff(3000, 3000) != 0 {
		t.Fatal("AbsDiff of equal amounts must be zero")
	}
}
