package auth

const htmxScript = "https://unpkg.com/htmx.org@2.0.4/dist/htmx.min.js"

// htmxConfig lets failed submissions swap their re-rendered form in place.
const htmxConfig = `{"responseHandling":[{"code":"204","swap":false},{"code":"[23]..","swap":true},` +
	`{"code":"(401|409|422|502)","swap":true,"error":true},{"code":"...","swap":false,"error":true}]}`

func (d LoginPageData) documentTitle() string {
	return d.Title + " · Admin Console"
}

func (d LoginPageData) stylesheet() string {
	return d.Routes.Static + "/login.css"
}

func (d LoginPageData) hxHeaders() string {
	return `{"X-CSRF-Token":"` + d.CSRFToken + `"}`
}

func (d LoginPageData) visibility() string {
	if d.PasswordVisible {
		return "visible"
	}
	return "hidden"
}

func (d LoginPageData) passwordInputType() string {
	if d.PasswordVisible {
		return "text"
	}
	return "password"
}

func (d LoginPageData) toggleLabel() string {
	if d.PasswordVisible {
		return "Hide password"
	}
	return "Show password"
}

func (d LoginPageData) eyeGlyph() string {
	if d.PasswordVisible {
		return "◉"
	}
	return "◎"
}

func (d LoginPageData) capsLockState() string {
	if d.CapsLock {
		return "on"
	}
	return "off"
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
