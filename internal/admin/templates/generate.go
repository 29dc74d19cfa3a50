// Package templates groups the console's templ components. The *_templ.go
// files are generated from the .templ sources beside them.
package templates

//go:generate templ generate -path .
