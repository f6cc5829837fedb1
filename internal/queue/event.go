// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// ActivationQueueName is the durable queue activation mail requests go to.
const ActivationQueueName = "account.activation"

// ActivationMailEvent is published when an account needs its activation
// link delivered. It carries everything the mailer needs, so consumers
// never query the primary database.
type ActivationMailEvent struct {
	Email         string    `json:"email"`
	ActivationURL string    `json:"activation_url"`
	Locale        string    `json:"locale"`
	RequestedAt   time.Time `json:"requested_at"`
}
