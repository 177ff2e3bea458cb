package mq

// NotifyRequestedPayload asks the notifier to deliver text to a known user.
type NotifyRequestedPayload struct {
	UserEmail string `json:"user_email"`
	Text      string `json:"text"`
}

// ForwardConfirmPayload asks the visitor to open a forwarding confirmation link.
type ForwardConfirmPayload struct {
	Email string `json:"email"`
	URL   string `json:"url"`
}
