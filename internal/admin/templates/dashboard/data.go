package dashboard

import (
	"strings"
	"time"
)

// PageData is the landing page payload shown after sign-in.
type PageData struct {
	Title      string
	Username   string
	Email      string
	Roles      []string
	SignedIn   time.Time
	LastActive time.Time
	ExpiresAt  time.Time
	Now        time.Time
	Static     string
}

func (d PageData) documentTitle() string {
	title := d.Title
	if title == "" {
		title = "Dashboard"
	}
	return title + " · Admin Console"
}

func (d PageData) roleList() string {
	return strings.Join(d.Roles, ", ")
}
