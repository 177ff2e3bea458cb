package model

import "time"

// NormalizedEmail is the plain-text projection of a raw message.
// Body never contains markup.
type NormalizedEmail struct {
	FromDisplay string
	FromAddress string
	// 第一个收件人，小写并去除空白
	To        string
	Subject   string
	Body      string
	Timestamp time.Time
}

// InboundUnit points at one raw email in the object store.
type InboundUnit struct {
	Bucket string
	Key    string
}

// KnownUser is a registered recipient. MessagingID is empty until the
// user links a chat account.
type KnownUser struct {
	Email            string
	MessagingID      string
	ForwardConfirmed bool
}
