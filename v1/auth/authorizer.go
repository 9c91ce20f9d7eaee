package auth

import (
	"sort"
	"strings"
)

// AllowList is the fixed set of admin emails, loaded once at startup
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList builds an allow-list; entries are trimmed and lower-cased.
// An empty list is valid and admits nobody.
func NewAllowList(emails []string) *AllowList {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return &AllowList{emails: set}
}

// IsAdmin reports whether email is on the list. Matching is exact after
// case folding; there are no wildcards or domain matches.
func (a *AllowList) IsAdmin(email string) bool {
	if a == nil {
		return false
	}
	_, ok := a.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Len returns the number of admins
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.emails)
}

// Emails returns the admins in sorted order
func (a *AllowList) Emails() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.emails))
	for e := range a.emails {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
