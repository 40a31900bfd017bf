package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) Send(to, subject, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to)
	return "email-msg-1", nil
}

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) Send(_ context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to)
	return "sms-msg-1", nil
}

func (f *fakeSMS) ProviderID() string { return "sms-fake" }

func testDispatcher(em *fakeEmail, sm *fakeSMS) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	return New(em, sm, logger).WithClock(func() time.Time { return base })
}

func bothRecipient() Recipient {
	return Recipient{
		CustomerID:       "cust-1",
		Name:             "Dana",
		Email:            "dana@example.com",
		Phone:            "+15550100",
		PreferredContact: ChannelBoth,
	}
}

func TestDispatch_BothChannels(t *testing.T) {
	em := &fakeEmail{}
	sm := &fakeSMS{}
	outs := testDispatcher(em, sm).Dispatch(context.Background(), KindReminder2h, bothRecipient(), Context{
		ServiceName: "Brake Service",
		Vehicle:     "2021 Toyota Corolla",
		ScheduledAt: time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
	})

	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	for _, out := range outs {
		if out.Status != StatusSent {
			t.Fatalf("expected sent, got %+v", out)
		}
		if out.MessageID == "" {
			t.Fatalf("sent outcome must carry a message id")
		}
		if out.Kind != KindReminder2h {
			t.Fatalf("outcome kind mismatch: %+v", out)
		}
	}
	if len(em.sent) != 1 || len(sm.sent) != 1 {
		t.Fatalf("both transports must be used")
	}
}

func TestDispatch_EmailFailureDoesNotBlockSMS(t *testing.T) {
	em := &fakeEmail{err: errors.New("smtp refused")}
	sm := &fakeSMS{}
	outs := testDispatcher(em, sm).Dispatch(context.Background(), KindReminder24h, bothRecipient(), Context{})

	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	if outs[0].Channel != ChannelEmail || outs[0].Status != StatusFailed || outs[0].ErrorMessage == "" {
		t.Fatalf("email outcome should be failed with error, got %+v", outs[0])
	}
	if outs[1].Channel != ChannelSMS || outs[1].Status != StatusSent {
		t.Fatalf("sms must still be attempted, got %+v", outs[1])
	}
	if len(sm.sent) != 1 {
		t.Fatalf("sms transport not reached")
	}
}

func TestDispatch_EmailOnlyPreference(t *testing.T) {
	em := &fakeEmail{}
	sm := &fakeSMS{}
	rcpt := bothRecipient()
	rcpt.PreferredContact = ChannelEmail
	outs := testDispatcher(em, sm).Dispatch(context.Background(), KindConfirmation, rcpt, Context{})

	if len(outs) != 1 || outs[0].Channel != ChannelEmail {
		t.Fatalf("expected single email outcome, got %+v", outs)
	}
	if len(sm.sent) != 0 {
		t.Fatalf("sms must not be attempted for email-only preference")
	}
}

func TestDispatch_MissingPhoneIsAFailedOutcome(t *testing.T) {
	em := &fakeEmail{}
	sm := &fakeSMS{}
	rcpt := bothRecipient()
	rcpt.Phone = ""
	outs := testDispatcher(em, sm).Dispatch(context.Background(), KindReminderSameDay, rcpt, Context{})

	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	if outs[1].Status != StatusFailed || outs[1].ErrorMessage == "" {
		t.Fatalf("missing phone should record a failed sms outcome, got %+v", outs[1])
	}
	if outs[0].Status != StatusSent {
		t.Fatalf("email must still succeed, got %+v", outs[0])
	}
}

func TestRender_TemplatesPerKind(t *testing.T) {
	msg := Context{
		ServiceName: "Brake Service",
		Vehicle:     "2021 Toyota Corolla",
		ScheduledAt: time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
	}

	subject, body := render(KindConfirmation, "Dana", msg)
	if subject != "Appointment confirmed" {
		t.Fatalf("confirmation subject: %q", subject)
	}
	if !strings.Contains(body, "Dana") || !strings.Contains(body, "Brake Service") || !strings.Contains(body, "2021 Toyota Corolla") {
		t.Fatalf("confirmation body missing details: %q", body)
	}

	_, body = render(KindPickupReady, "Dana", msg)
	if !strings.Contains(body, "ready for pickup") {
		t.Fatalf("pickup body: %q", body)
	}

	_, body = render(KindReminder2h, "", Context{})
	if !strings.Contains(body, "Hi there") {
		t.Fatalf("empty name must fall back, got %q", body)
	}
}
