package model

// Decision is the terminal routing output: Notify, ConfirmForward or Drop.
type Decision interface {
	isDecision()
	// Outcome 用作日志和指标标签
	Outcome() string
}

type Notify struct {
	UserEmail string
	Text      string
}

type ConfirmForward struct {
	Email string
	URL   string
}

type Drop struct {
	Reason string
}

const (
	DropUnknownRecipient = "unknown recipient"
	DropNotWorthReading  = "not worth reading"
)

func (Notify) isDecision()         {}
func (ConfirmForward) isDecision() {}
func (Drop) isDecision()           {}

func (Notify) Outcome() string         { return "notify" }
func (ConfirmForward) Outcome() string { return "confirm_forward" }
func (Drop) Outcome() string           { return "drop" }
