package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/email"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/sms"
)

// Communication kinds. Reminder kinds are selected by the scheduler;
// confirmation and pickup_ready are triggered by lifecycle events.
const (
	KindReminder24h     = "reminder_24h"
	KindReminder2h      = "reminder_2h"
	KindReminderSameDay = "reminder_same_day"
	KindConfirmation    = "confirmation"
	KindPickupReady     = "pickup_ready"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelBoth  = "both"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Recipient is the contact slice of an appointment the dispatcher needs.
type Recipient struct {
	CustomerID       string
	Name             string
	Email            string
	Phone            string
	PreferredContact string
}

// Context carries the appointment facts the templates interpolate.
type Context struct {
	ServiceName string
	Vehicle     string
	ScheduledAt time.Time
}

// Outcome is one per-channel delivery result.
type Outcome struct {
	Kind         string
	Channel      string
	Status       string
	MessageID    string
	ErrorMessage string
	SentAt       time.Time
}

// Dispatcher fans one communication out to the channels the customer asked
// for. Channel attempts are isolated: a transport failure on one channel is
// recorded and does not stop the other. No retries; a failed outcome is
// terminal for this pass.
type Dispatcher struct {
	email  email.Sender
	sms    sms.Sender
	logger *slog.Logger
	clock  func() time.Time
}

func New(emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		email:  emailSender,
		sms:    smsSender,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// Dispatch sends one communication of the given kind and returns one outcome
// per attempted channel. An unknown preferred contact falls back to email.
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, rcpt Recipient, msg Context) []Outcome {
	subject, body := render(kind, rcpt.Name, msg)

	preferred := strings.ToLower(strings.TrimSpace(rcpt.PreferredContact))
	wantEmail := preferred == ChannelEmail || preferred == ChannelBoth || preferred == ""
	wantSMS := preferred == ChannelSMS || preferred == ChannelBoth

	var outcomes []Outcome
	if wantEmail {
		outcomes = append(outcomes, d.sendEmail(kind, rcpt, subject, body))
	}
	if wantSMS {
		outcomes = append(outcomes, d.sendSMS(ctx, kind, rcpt, body))
	}
	return outcomes
}

func (d *Dispatcher) sendEmail(kind string, rcpt Recipient, subject, body string) Outcome {
	out := Outcome{Kind: kind, Channel: ChannelEmail, SentAt: d.clock()}
	if rcpt.Email == "" {
		out.Status = StatusFailed
		out.ErrorMessage = "no email address on file"
		return out
	}
	messageID, err := d.email.Send(rcpt.Email, subject, body)
	if err != nil {
		d.logger.Warn("email send failed", "kind", kind, "customer_id", rcpt.CustomerID, "err", err)
		out.Status = StatusFailed
		out.ErrorMessage = err.Error()
		return out
	}
	out.Status = StatusSent
	out.MessageID = messageID
	return out
}

func (d *Dispatcher) sendSMS(ctx context.Context, kind string, rcpt Recipient, body string) Outcome {
	out := Outcome{Kind: kind, Channel: ChannelSMS, SentAt: d.clock()}
	if rcpt.Phone == "" {
		out.Status = StatusFailed
		out.ErrorMessage = "no phone number on file"
		return out
	}
	messageID, err := d.sms.Send(ctx, rcpt.Phone, body)
	if err != nil {
		d.logger.Warn("sms send failed", "kind", kind, "customer_id", rcpt.CustomerID, "err", err)
		out.Status = StatusFailed
		out.ErrorMessage = err.Error()
		return out
	}
	out.Status = StatusSent
	out.MessageID = messageID
	return out
}

func render(kind, name string, msg Context) (subject, body string) {
	when := msg.ScheduledAt.Format("Monday, Jan 2 at 3:04 PM")
	service := msg.ServiceName
	if service == "" {
		service = "your service"
	}
	vehicle := msg.Vehicle
	if vehicle == "" {
		vehicle = "your vehicle"
	}
	if name == "" {
		name = "there"
	}

	switch kind {
	case KindConfirmation:
		subject = "Appointment confirmed"
		body = fmt.Sprintf("Hi %s, your %s appointment for %s is confirmed for %s. See you then!", name, service, vehicle, when)
	case KindReminder24h:
		subject = "Appointment tomorrow"
		body = fmt.Sprintf("Hi %s, a reminder that %s for %s is scheduled for %s.", name, service, vehicle, when)
	case KindReminder2h:
		subject = "Appointment in 2 hours"
		body = fmt.Sprintf("Hi %s, %s for %s is coming up at %s. See you soon!", name, service, vehicle, when)
	case KindReminderSameDay:
		subject = "Appointment today"
		body = fmt.Sprintf("Hi %s, don't forget: %s for %s today at %s.", name, service, vehicle, msg.ScheduledAt.Format("3:04 PM"))
	case KindPickupReady:
		subject = "Your vehicle is ready"
		body = fmt.Sprintf("Hi %s, %s is complete and %s is ready for pickup.", name, service, vehicle)
	default:
		subject = "Update from your auto shop"
		body = fmt.Sprintf("Hi %s, there is an update about %s for %s.", name, service, vehicle)
	}
	return subject, body
}
