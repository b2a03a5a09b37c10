// Package sysutil holds process-level helpers shared by the server binary
// and configuration loading: log level and sink setup, flag-style boolean
// parsing and listen address normalization.
package sysutil

import (
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from a config string and returns
// the level applied. Unknown or empty values fall back to info; "warning" is
// accepted as an alias for warn.
func SetLogLevel(lvl string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || level == zerolog.NoLevel || level == zerolog.Disabled || level == zerolog.TraceLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// ParseBool reads an environment-style boolean. ok is false when v is
// neither a recognized true nor false spelling.
func ParseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// IsTruthy reports whether v spells true ("1", "true", "yes", "y", "on").
func IsTruthy(v string) bool {
	b, ok := ParseBool(v)
	return ok && b
}

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ListenAddr turns a PORT value into an address for http.Server. A bare
// port binds all interfaces; host:port values pass through.
func ListenAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ":8080"
	}
	if _, _, err := net.SplitHostPort(port); err == nil {
		return port
	}
	return net.JoinHostPort("", strings.TrimPrefix(port, ":"))
}
