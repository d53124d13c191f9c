package models

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// DefaultAutoCloseDays applies when a mailbox enables auto-close without a value
const DefaultAutoCloseDays = 14

// Mailbox is a tenant's support inbox
type Mailbox struct {
	ID                        int64    `db:"id" json:"id"`
	Slug                      string   `db:"slug" json:"slug"`
	Name                      string   `db:"name" json:"name"`
	VipThreshold              *float64 `db:"vip_threshold" json:"vip_threshold,omitempty"` // Major units (e.g. dollars)
	AutoCloseEnabled          bool     `db:"auto_close_enabled" json:"auto_close_enabled"`
	AutoCloseDaysOfInactivity *int     `db:"auto_close_days_of_inactivity" json:"auto_close_days_of_inactivity,omitempty"`
}

// InactivityDays returns the configured days of inactivity, defaulting to 14
func (m *Mailbox) InactivityDays() int {
	if m.AutoCloseDaysOfInactivity == nil || *m.AutoCloseDaysOfInactivity <= 0 {
		return DefaultAutoCloseDays
	}
	return *m.AutoCloseDaysOfInactivity
}

// MemberRole is a team member's role within a mailbox
type MemberRole string

const (
	MemberCore    MemberRole = "core"
	MemberNonCore MemberRole = "non-core"
	MemberAFK     MemberRole = "afk"
)

// TeamMember is a user with access to a mailbox
type TeamMember struct {
	ID          string         `db:"id" json:"id"`
	DisplayName *string        `db:"display_name" json:"display_name,omitempty"`
	Email       *string        `db:"email" json:"email,omitempty"`
	Role        MemberRole     `db:"role" json:"role"`
	Keywords    pq.StringArray `db:"keywords" json:"keywords"`
	Preferences types.JSONText `db:"preferences" json:"preferences,omitempty"`
}

type memberPreferences struct {
	AllowVipMessageEmail *bool `json:"allowVipMessageEmail"`
}

// AllowsVipEmail reports whether the member has not opted out of VIP emails.
// Missing or unparseable preferences count as opted in.
func (m *TeamMember) AllowsVipEmail() bool {
	if len(m.Preferences) == 0 {
		return true
	}
	var prefs memberPreferences
	if err := json.Unmarshal(m.Preferences, &prefs); err != nil {
		return true
	}
	return prefs.AllowVipMessageEmail == nil || *prefs.AllowVipMessageEmail
}

// EmailAddress returns the member's email or an empty string
func (m *TeamMember) EmailAddress() string {
	if m.Email == nil {
		return ""
	}
	return *m.Email
}

// Name returns the display name, falling back to the email address
func (m *TeamMember) Name() string {
	if m.DisplayName != nil && *m.DisplayName != "" {
		return *m.DisplayName
	}
	return m.EmailAddress()
}

// PlatformCustomer is a customer record from the platform store
type PlatformCustomer struct {
	Email string         `db:"email" json:"email"`
	Name  *string        `db:"name" json:"name,omitempty"`
	Value *float64       `db:"value" json:"value,omitempty"` // Minor units (e.g. cents)
	Links types.JSONText `db:"links" json:"links,omitempty"`
}

// IsVip reports whether the customer's value reaches the mailbox threshold.
// A nil threshold disables VIP status entirely.
func (p *PlatformCustomer) IsVip(threshold *float64) bool {
	if threshold == nil || p.Value == nil {
		return false
	}
	return *p.Value >= math.Round(*threshold*100)
}

// DisplayName returns the customer name, falling back to the email address
func (p *PlatformCustomer) DisplayName() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return p.Email
}

// CustomerLink is a labelled external link attached to a customer
type CustomerLink struct {
	Label string
	URL   string
}

// LinkList returns the customer links sorted by label
func (p *PlatformCustomer) LinkList() []CustomerLink {
	if len(p.Links) == 0 {
		return nil
	}
	var raw map[string]string
	if err := json.Unmarshal(p.Links, &raw); err != nil {
		return nil
	}
	links := make([]CustomerLink, 0, len(raw))
	for label, url := range raw {
		links = append(links, CustomerLink{Label: label, URL: url})
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Label < links[j].Label })
	return links
}
