// Package settings holds the singleton reminder configuration: whether the
// scheduler is on, which channels it may use, which lead times it fires at,
// and the message templates it sends with.
package settings

import (
	"sort"
	"strings"
)

const maxLeadHours = 720

// Settings is the agency-wide reminder configuration. LeadHours are the
// hours-before-start marks at which a reminder goes out. Empty templates mean
// the notification service falls back to its built-in wording.
type Settings struct {
	Enabled       bool   `json:"enabled"`
	EmailEnabled  bool   `json:"email_enabled"`
	SMSEnabled    bool   `json:"sms_enabled"`
	LeadHours     []int  `json:"lead_hours"`
	EmailTemplate string `json:"email_template"`
	SMSTemplate   string `json:"sms_template"`
}

// Default returns the configuration used until an admin stores one:
// reminders on over both channels, at 24 hours and 2 hours before the
// appointment, with the built-in templates.
func Default() Settings {
	return Settings{
		Enabled:      true,
		EmailEnabled: true,
		SMSEnabled:   true,
		LeadHours:    []int{24, 2},
	}
}

// Normalize drops non-positive and oversized lead times, removes duplicates,
// and orders the rest largest first. An empty result falls back to the
// default lead times so enabling reminders can never mean firing none.
// Templates are kept verbatim apart from surrounding whitespace.
func (s Settings) Normalize() Settings {
	seen := make(map[int]bool, len(s.LeadHours))
	leads := make([]int, 0, len(s.LeadHours))
	for _, h := range s.LeadHours {
		if h <= 0 || h > maxLeadHours || seen[h] {
			continue
		}
		seen[h] = true
		leads = append(leads, h)
	}
	if len(leads) == 0 {
		leads = Default().LeadHours
	}
	sort.Sort(sort.Reverse(sort.IntSlice(leads)))

	s.LeadHours = leads
	s.EmailTemplate = strings.TrimSpace(s.EmailTemplate)
	s.SMSTemplate = strings.TrimSpace(s.SMSTemplate)
	return s
}

// HasLead reports whether the given lead time is configured.
func (s Settings) HasLead(hours int) bool {
	for _, h := range s.LeadHours {
		if h == hours {
			return true
		}
	}
	return false
}

// AnyChannelEnabled reports whether at least one delivery channel is on.
// With both channels off there is nothing a scan could send.
func (s Settings) AnyChannelEnabled() bool {
	return s.EmailEnabled || s.SMSEnabled
}
