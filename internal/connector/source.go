// Package connector builds and holds the live per-(org, source) connector
// instances.
//
// A Definition describes one source type: the config node holding its
// credentials, the credential fields it needs and its run loop. The Factory
// turns a Definition plus an org's credentials into an Instance and
// registers it in the Slot, which holds at most one Instance per key.
package connector

import (
	"strings"
)

// Source is a normalized source type name, e.g. "onedrive".
type Source string

// Known source types. Connector-style sources have a Definition; the other
// names are recognised so they can be routed or skipped.
const (
	SourceOneDrive        Source = "onedrive"
	SourceSharePoint      Source = "sharepointonline"
	SourceDrive           Source = "drive"
	SourceGmail           Source = "gmail"
	SourceCalendar        Source = "calendar"
	SourceOutlookCalendar Source = "outlookcalendar"
)

// Normalize maps an app name as stored for an org ("SharePoint Online")
// onto its Source ("sharepointonline").
func Normalize(name string) Source {
	return Source(strings.ToLower(strings.Join(strings.Fields(name), "")))
}

// IsCalendar reports whether s is a calendar source. Calendar sync is never
// resumed.
func (s Source) IsCalendar() bool {
	return s == SourceCalendar || s == SourceOutlookCalendar
}

func (s Source) String() string {
	return string(s)
}
