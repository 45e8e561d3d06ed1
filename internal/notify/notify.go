// Package notify carries the notification collaborator boundary.
//
// The engine records "notification requested" synchronously inside the
// hold's lock and hands actual delivery to this package's queue. Delivery is
// best-effort: outcomes flow back into the audit trail as informational
// entries and never gate a state transition.
package notify

import (
	"context"
	"log/slog"

	id "holdright/pkg/domain"
)

// Channel is the delivery medium for a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Kind distinguishes why a custodian is being contacted.
type Kind string

const (
	KindInitialNotice    Kind = "initial_notice"
	KindReminder         Kind = "reminder"
	KindEscalationNotice Kind = "escalation_notice"
)

// Message is one delivery request handed to a Dispatcher.
type Message struct {
	HoldID         id.HoldID
	RecipientEmail string
	RecipientName  string
	Channel        Channel
	TemplateRef    string
	Kind           Kind
	// Context carries template substitution values (hold name, deadline...).
	Context map[string]string
}

// Result reports a best-effort delivery attempt.
type Result struct {
	Delivered bool
	Detail    string
}

// Dispatcher accepts a message and reports best-effort delivery. The engine
// does not retry transport failures itself; that belongs to the transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) (Result, error)
}

// LogDispatcher writes messages to the log instead of delivering them.
// Default for development and tests; production wires a real transport.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher constructs a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the message and reports it delivered.
func (d *LogDispatcher) Dispatch(ctx context.Context, msg Message) (Result, error) {
	d.logger.InfoContext(ctx, "notification dispatched",
		"hold_id", msg.HoldID.String(),
		"recipient", msg.RecipientEmail,
		"channel", string(msg.Channel),
		"kind", string(msg.Kind),
		"template", msg.TemplateRef,
	)
	return Result{Delivered: true, Detail: "logged"}, nil
}
