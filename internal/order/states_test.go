package order

import "testing"

func TestDocumentTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusFraudAttempt, true},
		{StatusPending, StatusCancelled, true},
		{StatusPaid, StatusProcessing, true},
		{StatusProcessing, StatusFinished, true},
		{StatusPending, StatusFinished, false},
		{StatusPaid, StatusPending, false},
		{StatusFraudAttempt, StatusPaid, false},
		{StatusPending, StatusSubmittedToOffice, false},
	}
	for _, tc := range cases {
		if got := CanTransition(KindDocument, tc.from, tc.to); got != tc.want {
			t.Errorf("document %s -> %s: want %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestTrademarkTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPaid, StatusProcessing, true},
		{StatusProcessing, StatusSubmittedToOffice, true},
		{StatusSubmittedToOffice, StatusPublished, true},
		{StatusPublished, StatusRegistered, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRejected, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusRejected, true},
		{StatusProcessing, StatusCancelled, false},
		{StatusRegistered, StatusPending, false},
		{StatusPaid, StatusFinished, false},
	}
	for _, tc := range cases {
		if got := CanTransition(KindTrademark, tc.from, tc.to); got != tc.want {
			t.Errorf("trademark %s -> %s: want %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := []Status{StatusFinished, StatusFailed, StatusFraudAttempt, StatusCancelled, StatusRegistered, StatusRejected}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []Status{StatusPending, StatusPaid, StatusProcessing, StatusSubmittedToOffice, StatusPublished}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatusValid(t *testing.T) {
	if Status("shipped").Valid() {
		t.Fatal("unknown status accepted")
	}
	if !StatusSubmittedToOffice.Valid() {
		t.Fatal("known status rejected")
	}
}
