package main

import (
	"encoding/json"
	"testing"

	"github.com/yawo-koffi/voyago/services/notification-service/internal/template"
)

func TestPickChannelPrefersEmail(t *testing.T) {
	p := newReminderDuePayload()
	p.ContactEmail = "ama@example.com"
	p.ContactPhone = "+233200000000"

	channel, recipient, ok := pickChannel(p)
	if !ok || channel != "email" || recipient != "ama@example.com" {
		t.Fatalf("got channel=%q recipient=%q ok=%v, want email", channel, recipient, ok)
	}
}

func TestPickChannelHonorsDisabledEmail(t *testing.T) {
	p := newReminderDuePayload()
	p.EmailEnabled = false
	p.ContactEmail = "ama@example.com"
	p.ContactPhone = "+233200000000"

	channel, recipient, ok := pickChannel(p)
	if !ok || channel != "sms" || recipient != "+233200000000" {
		t.Fatalf("disabled email must fall through to sms, got channel=%q ok=%v", channel, ok)
	}
}

func TestPickChannelNothingEnabled(t *testing.T) {
	p := newReminderDuePayload()
	p.EmailEnabled = false
	p.SMSEnabled = false
	p.ContactEmail = "ama@example.com"
	p.ContactPhone = "+233200000000"

	if _, _, ok := pickChannel(p); ok {
		t.Fatalf("both channels off must pick nothing")
	}
}

func TestPayloadDefaultsEnableBothChannels(t *testing.T) {
	// Events emitted before the per-channel flags existed carry neither
	// field; they must still deliver.
	p := newReminderDuePayload()
	if err := json.Unmarshal([]byte(`{"booking_id":"b1","contact_phone":"+233200000000"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	channel, _, ok := pickChannel(p)
	if !ok || channel != "sms" {
		t.Fatalf("legacy payload must deliver over sms, got channel=%q ok=%v", channel, ok)
	}
}

func TestTemplateOr(t *testing.T) {
	if got := templateOr("  ", template.DefaultSMSBody); got != template.DefaultSMSBody {
		t.Fatalf("blank custom template must fall back, got %q", got)
	}
	if got := templateOr("Hi {{name}}", template.DefaultSMSBody); got != "Hi {{name}}" {
		t.Fatalf("custom template must win, got %q", got)
	}
}
