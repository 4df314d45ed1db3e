package client

import "fmt"

// Credentials holds a username and password. The password is never printed
// by any formatting path: String, GoString, Format, and the marshalers all
// redact it, so credentials can appear in logs and %+v dumps safely.
type Credentials struct {
	username string
	password string
}

// NewCredentials creates Credentials with the given username and password.
func NewCredentials(username, password string) Credentials {
	return Credentials{username: username, password: password}
}

// Username returns the username.
func (c Credentials) Username() string {
	return c.username
}

// Password returns the password. Call it only at the point the password is
// actually fed into an authentication exchange.
func (c Credentials) Password() string {
	return c.password
}

// String returns a safe representation that never includes the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{username: %q, password: [REDACTED]}", c.username)
}

// GoString returns a safe representation for %#v formatting.
func (c Credentials) GoString() string {
	return c.String()
}

// Format implements fmt.Formatter so no verb leaks the password.
func (c Credentials) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') || f.Flag('#') {
			_, _ = fmt.Fprint(f, c.String())
		} else {
			_, _ = fmt.Fprintf(f, "{%s [REDACTED]}", c.username)
		}
	default:
		_, _ = fmt.Fprintf(f, "{%s [REDACTED]}", c.username)
	}
}

// MarshalJSON returns a JSON representation that never includes the password.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"username":%q,"password":"[REDACTED]"}`, c.username)), nil
}

// MarshalText returns a text representation that never includes the password.
func (c Credentials) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
