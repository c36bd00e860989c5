// Package rdio implements the Rdio export sidecar: a JSON metadata
// file written alongside each recorded call, and a bounded background
// upload queue that ships it to an Rdio-compatible API endpoint.
package rdio

import (
	"time"

	"github.com/arancormonk/dsd-neo/internal/geoloc"
	"github.com/arancormonk/dsd-neo/internal/timefmt"
)

// Source is one entry in a call's source list: the position (offset
// in seconds from call start) a given source radio ID keyed up.
type Source struct {
	Pos int    `json:"pos"`
	Src uint32 `json:"src"`
}

// Call is the JSON shape written alongside each recorded WAV. Lat/Lon
// are only populated when the decoded traffic carried a GPS-derived
// source location; HasLocation distinguishes that from 0,0.
type Call struct {
	StartTime    int64    `json:"start_time"`
	StopTime     int64    `json:"stop_time"`
	Talkgroup    uint32   `json:"talkgroup"`
	TalkgroupTag string   `json:"talkgroup_tag,omitempty"`
	SrcList      []Source `json:"srcList"`
	Freq         uint64   `json:"freq"`
	System       int      `json:"system"`
	ShortName    string   `json:"short_name,omitempty"`
	Emergency    bool     `json:"emergency"`
	Encrypted    bool     `json:"encrypted"`
	Lat          float64  `json:"lat,omitempty"`
	Lon          float64  `json:"lon,omitempty"`
	HasLocation  bool     `json:"-"`
}

// WithLocation attaches a decoded GPS source location to the call.
func (c Call) WithLocation(loc geoloc.Location) Call {
	c.Lat = loc.LatDeg
	c.Lon = loc.LonDeg
	c.HasLocation = true
	return c
}

// Location returns the call's decoded source location, if any.
func (c Call) Location() (geoloc.Location, bool) {
	if !c.HasLocation {
		return geoloc.Location{}, false
	}
	return geoloc.Location{LatDeg: c.Lat, LonDeg: c.Lon}, true
}

// LocalStamp renders the call's start time the way console status
// lines and log prefixes do, honoring the process's local UTC offset.
func (c Call) LocalStamp() string {
	return timefmt.Stamp(time.Unix(c.StartTime, 0))
}
