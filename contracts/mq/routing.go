package mq

// Routing keys on the events exchange.
const (
	RoutingKeyEmailStored     = "email.stored"
	RoutingKeyNotifyRequested = "notify.requested"
	RoutingKeyForwardConfirm  = "forward.confirm"
)
