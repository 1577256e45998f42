package settings

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	got := Settings{Enabled: true, LeadHours: []int{2, 24, 2, -5, 0, 24, 9000}}.Normalize()
	want := []int{24, 2}
	if !reflect.DeepEqual(got.LeadHours, want) {
		t.Fatalf("normalized leads = %v, want %v", got.LeadHours, want)
	}
	if !got.Enabled {
		t.Fatalf("Normalize must not touch Enabled")
	}
}

func TestNormalizeEmptyFallsBackToDefault(t *testing.T) {
	got := Settings{Enabled: true, LeadHours: []int{-1, 0}}.Normalize()
	if !reflect.DeepEqual(got.LeadHours, Default().LeadHours) {
		t.Fatalf("empty leads should fall back to defaults, got %v", got.LeadHours)
	}
}

func TestNormalizeKeepsChannelsAndTemplates(t *testing.T) {
	got := Settings{
		Enabled:       true,
		EmailEnabled:  true,
		SMSEnabled:    false,
		LeadHours:     []int{24},
		EmailTemplate: "  Hi {{name}}, see you at {{start}}.  ",
		SMSTemplate:   "{{start}} in {{hours}}h",
	}.Normalize()
	if !got.EmailEnabled || got.SMSEnabled {
		t.Fatalf("Normalize must not touch channel flags, got email=%v sms=%v", got.EmailEnabled, got.SMSEnabled)
	}
	if got.EmailTemplate != "Hi {{name}}, see you at {{start}}." {
		t.Fatalf("email template not trimmed: %q", got.EmailTemplate)
	}
	if got.SMSTemplate != "{{start}} in {{hours}}h" {
		t.Fatalf("sms template changed: %q", got.SMSTemplate)
	}
}

func TestDefaultEnablesBothChannels(t *testing.T) {
	s := Default()
	if !s.EmailEnabled || !s.SMSEnabled || !s.AnyChannelEnabled() {
		t.Fatalf("defaults must enable both channels, got %+v", s)
	}
	if s.EmailTemplate != "" || s.SMSTemplate != "" {
		t.Fatalf("defaults must leave templates empty so built-in wording applies")
	}
}

func TestAnyChannelEnabled(t *testing.T) {
	if (Settings{}).AnyChannelEnabled() {
		t.Fatalf("no channel flags set should report no enabled channel")
	}
	if !(Settings{SMSEnabled: true}).AnyChannelEnabled() {
		t.Fatalf("sms alone should count as an enabled channel")
	}
}

func TestHasLead(t *testing.T) {
	s := Default()
	if !s.HasLead(24) || !s.HasLead(2) {
		t.Fatalf("default settings should carry 24h and 2h leads")
	}
	if s.HasLead(48) {
		t.Fatalf("48h lead should not be configured by default")
	}
}
