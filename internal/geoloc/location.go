// Package geoloc formats and compares the GPS-derived location metadata
// embedded in some P25/DMR traffic (talkgroup source location), and backs
// the "location" field of the Rdio export sidecar.
package geoloc

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/tzneal/coordconv"
)

// Location is a decoded latitude/longitude pair, in decimal degrees.
type Location struct {
	LatDeg float64
	LonDeg float64
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

func (l Location) latLng() s2.LatLng {
	return s2.LatLng{Lat: s1.Angle(degToRad(l.LatDeg)), Lng: s1.Angle(degToRad(l.LonDeg))}
}

// DistanceMeters returns the great-circle distance between two
// locations, used by the rdio upload queue to flag an implausible jump
// in reported source location between consecutive calls.
func DistanceMeters(a, b Location) float64 {
	const earthRadiusMeters = 6371000.0
	angle := a.latLng().Distance(b.latLng())
	return float64(angle) * earthRadiusMeters
}

// UTM converts a Location to UTM zone/hemisphere/easting/northing.
func (l Location) UTM() (zone int, hemisphere rune, easting, northing float64, err error) {
	coord, convErr := coordconv.DefaultUTMConverter.ConvertFromGeodetic(l.latLng(), 0)
	if convErr != nil {
		return 0, 0, 0, 0, convErr
	}
	return coord.Zone, hemisphereRune(coord.Hemisphere), coord.Easting, coord.Northing, nil
}

func hemisphereRune(h coordconv.Hemisphere) rune {
	switch h {
	case coordconv.HemisphereNorth:
		return 'N'
	case coordconv.HemisphereSouth:
		return 'S'
	default:
		return '?'
	}
}

// NMEA formats the location the way NMEA GPRMC sentences do: ddmm.mmmm
// plus a hemisphere letter, for each axis.
func (l Location) NMEA() (latStr, latHemi, lonStr, lonHemi string) {
	latStr, latHemi = nmeaAxis(l.LatDeg, 2, 'N', 'S')
	lonStr, lonHemi = nmeaAxis(l.LonDeg, 3, 'E', 'W')
	return
}

func nmeaAxis(deg float64, degDigits int, posHemi, negHemi byte) (string, string) {
	hemi := string(posHemi)
	if deg < 0 {
		hemi = string(negHemi)
		deg = -deg
	}
	whole := math.Floor(deg)
	minutes := (deg - whole) * 60
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(whole), minutes), hemi
}
