package login

import "net/url"

const (
	redirectParam       = "redirect"
	defaultRedirectPath = "/"
)

// RedirectTarget is where the user goes after a successful login.
type RedirectTarget struct {
	Path       string
	OtherQuery url.Values
}

// RedirectTargetFromQuery derives the post-login destination from the query
// the login page was opened with. The redirect key never appears in
// OtherQuery.
func RedirectTargetFromQuery(query url.Values) RedirectTarget {
	target := RedirectTarget{
		Path:       defaultRedirectPath,
		OtherQuery: url.Values{},
	}
	for key, values := range query {
		if key == redirectParam {
			if len(values) > 0 && values[0] != "" {
				target.Path = values[0]
			}
			continue
		}
		target.OtherQuery[key] = append([]string(nil), values...)
	}
	return target
}

func (t RedirectTarget) clone() RedirectTarget {
	out := RedirectTarget{Path: t.Path, OtherQuery: make(url.Values, len(t.OtherQuery))}
	for key, values := range t.OtherQuery {
		out.OtherQuery[key] = append([]string(nil), values...)
	}
	return out
}
