package model

import "github.com/goccy/go-json"

// Result is either Attention or ForwardConfirmation.
type Result interface {
	isResult()
}

type Attention struct {
	WorthReading bool
	Reason       string
}

// ForwardConfirmation is a provider notice asking to approve mail forwarding.
// ConfirmURL is always an absolute URL.
type ForwardConfirmation struct {
	TargetEmail string
	ConfirmURL  string
}

func (Attention) isResult()           {}
func (ForwardConfirmation) isResult() {}

// MarshalJSON renders the canonical model-response shape.
func (a Attention) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		WorthReading bool   `json:"worth_reading"`
		Reason       string `json:"reason"`
	}{a.WorthReading, a.Reason})
}

func (f ForwardConfirmation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Link  string `json:"gmail_forward_confirm_link"`
		Email string `json:"email"`
	}{f.ConfirmURL, f.TargetEmail})
}
