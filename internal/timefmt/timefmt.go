// Package timefmt renders the date/time strings the Rdio export sidecar
// and console status lines embed, honoring the process's local UTC
// offset the way the rest of the system does.
package timefmt

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// Layout names the handful of date/time renderings the spec calls out.
type Layout string

const (
	LayoutYYYYMMDD   Layout = "%Y%m%d"
	LayoutISODate    Layout = "%Y-%m-%d"
	LayoutSlashDate  Layout = "%Y/%m/%d"
	LayoutHHMMSS     Layout = "%H%M%S"
	LayoutColonClock Layout = "%H:%M:%S"
)

// Format renders t using one of the named layouts. An unrecognized
// layout falls back to RFC3339, never panics.
func Format(layout Layout, t time.Time) string {
	s, err := strftime.Format(string(layout), t)
	if err != nil {
		return t.Format(time.RFC3339)
	}
	return s
}

// LocalOffset returns the process's local UTC offset, e.g. "-0400", by
// resolving the runtime timezone and asking the standard library for
// its offset at now. Falls back to "+0000" if the local zone cannot be
// determined.
func LocalOffset(now time.Time) string {
	name, err := tzlocal.RuntimeTZ()
	if err != nil {
		return "+0000"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return "+0000"
	}
	_, offsetSec := now.In(loc).Zone()
	sign := '+'
	if offsetSec < 0 {
		sign = '-'
		offsetSec = -offsetSec
	}
	return fmt.Sprintf("%c%02d%02d", sign, offsetSec/3600, (offsetSec%3600)/60)
}

// Stamp renders a combined date+time+offset string used in Rdio export
// and log prefixes: "YYYY-MM-DD HH:MM:SS +0000".
func Stamp(now time.Time) string {
	return fmt.Sprintf("%s %s %s", Format(LayoutISODate, now), Format(LayoutColonClock, now), LocalOffset(now))
}

// UnixMillis returns t as epoch milliseconds, so JSON consumers do not
// need to parse a locale string.
func UnixMillis(t time.Time) int64 {
	return t.UnixMilli()
}
