package simulator

import (
	"math"
	"time"

	"github.com/beingmushfiq/Track-R/parser"
)

type Point struct {
	Time       time.Time
	Latitude   float64
	Longitude  float64
	Speed      uint8
	Heading    uint16
	Satellites uint8
	Valid      bool
	Ignition   bool
}

func (p Point) gt06() *parser.GT06Location {
	return &parser.GT06Location{
		Time:       p.Time,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Speed:      p.Speed,
		Heading:    p.Heading,
		Satellites: p.Satellites,
		Valid:      p.Valid,
	}
}

// nextPoint moves the device a short random step from its last position.
func (td *TrackerDevice) nextPoint(now time.Time) Point {
	p := td.point
	p.Time = now.UTC().Truncate(time.Second)
	p.Heading = uint16((int(p.Heading) + getRandomInt(td, -30, 30) + 360) % 360)
	p.Speed = uint8(getRandomInt(td, 0, 90))
	p.Satellites = uint8(getRandomInt(td, 4, 12))
	p.Ignition = p.Speed > 0

	// one degree of latitude is roughly 111 km
	dist := float64(p.Speed) * td.interval.Hours() / 111
	rad := float64(p.Heading) * math.Pi / 180
	p.Latitude = clamp(p.Latitude+dist*math.Cos(rad), -89.9, 89.9)
	p.Longitude = wrap(p.Longitude + dist*math.Sin(rad))
	td.point = p
	return p
}

func getRandomInt(td *TrackerDevice, min, max int) int {
	return min + td.rnd.Intn(max-min+1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrap(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
