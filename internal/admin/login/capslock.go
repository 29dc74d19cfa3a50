package login

import (
	"unicode"
	"unicode/utf8"
)

const (
	keyCapsLock = "CapsLock"
	keyEnter    = "Enter"
)

// KeyEvent is a keyup on the password input.
type KeyEvent struct {
	Key   string
	Shift bool
}

// capsLockAfter infers the caps lock state from a single keystroke. A letter
// whose case disagrees with the shift state means caps lock is on. The
// inference only sees letters, so it stays false until one is typed and never
// consults the OS.
func capsLockAfter(active bool, ev KeyEvent) bool {
	if utf8.RuneCountInString(ev.Key) == 1 {
		r, _ := utf8.DecodeRuneInString(ev.Key)
		switch {
		case unicode.IsUpper(r):
			active = !ev.Shift
		case unicode.IsLower(r):
			active = ev.Shift
		default:
			active = false
		}
	}
	if ev.Key == keyCapsLock && active {
		active = false
	}
	return active
}
