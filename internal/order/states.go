package order

// Status is the lifecycle state of a purchase aggregate. Transitions are only
// ever written by the webhook reconciliation flows or an authenticated admin
// action.
type Status string

const (
	StatusPending           Status = "pending"
	StatusPaid              Status = "paid"
	StatusFailed            Status = "failed"
	StatusFraudAttempt      Status = "fraud_attempt"
	StatusCancelled         Status = "cancelled"
	StatusProcessing        Status = "processing"
	StatusFinished          Status = "finished"
	StatusSubmittedToOffice Status = "submitted_to_office"
	StatusPublished         Status = "published"
	StatusRegistered        Status = "registered"
	StatusRejected          Status = "rejected"
)

var documentTransitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusFailed, StatusFraudAttempt, StatusCancelled},
	StatusPaid:       {StatusProcessing},
	StatusProcessing: {StatusFinished},
}

var trademarkTransitions = map[Status][]Status{
	StatusPending:           {StatusPaid, StatusFailed, StatusFraudAttempt, StatusCancelled, StatusRejected},
	StatusPaid:              {StatusProcessing, StatusCancelled, StatusRejected},
	StatusProcessing:        {StatusSubmittedToOffice},
	StatusSubmittedToOffice: {StatusPublished},
	StatusPublished:         {StatusRegistered},
}

// CanTransition reports whether the aggregate kind permits moving from one
// status to another.
func CanTransition(kind Kind, from, to Status) bool {
	table := documentTransitions
	if kind == KindTrademark {
		table = trademarkTransitions
	}
	for _, allowed := range table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusFraudAttempt, StatusCancelled, StatusRegistered, StatusRejected:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusFraudAttempt, StatusCancelled,
		StatusProcessing, StatusFinished, StatusSubmittedToOffice, StatusPublished,
		StatusRegistered, StatusRejected:
		return true
	default:
		return false
	}
}
