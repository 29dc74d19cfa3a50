package login

import "strings"

// Autofill maps a serving hostname to credentials that pre-populate the form,
// e.g. for a public demo deployment.
type Autofill map[string]Credentials

// Lookup resolves the credentials registered for hostname. Hostnames compare
// case-insensitively and any port is ignored.
func (a Autofill) Lookup(hostname string) (Credentials, bool) {
	host := normalizeHostname(hostname)
	if host == "" || len(a) == 0 {
		return Credentials{}, false
	}
	for candidate, creds := range a {
		if normalizeHostname(candidate) == host {
			return creds, true
		}
	}
	return Credentials{}, false
}

func normalizeHostname(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			return host[1:end]
		}
		return host
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 && strings.Count(host, ":") == 1 {
		host = host[:idx]
	}
	return strings.TrimSuffix(host, ".")
}
