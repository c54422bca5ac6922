package wind

import (
	"fmt"
	"time"
)

// Observation is a single anemometer reading.
type Observation struct {
	Time      time.Time `json:"time"`
	Direction uint16    `json:"direction"`
	AvgSpeed  float64   `json:"avg_speed"`
}

var compass = []struct {
	angle  uint16
	name   string
	marker string
}{
	{0, "N", "↓"},
	{360, "N", "↓"},
	{45, "NE", "↙"},
	{90, "E", "←"},
	{135, "SE", "↖"},
	{180, "S", "↑"},
	{225, "SW", "↗"},
	{270, "W", "→"},
	{315, "NW", "↘"},
}

// String renders the observation the way it appears in notifications,
// e.g. "14:05  5.4 m/s SE ↖ (135°)".
func (o Observation) String() string {
	name, marker := compass[0].name, compass[0].marker
	best := absDiff(o.Direction, compass[0].angle)
	for _, c := range compass[1:] {
		if d := absDiff(o.Direction, c.angle); d < best {
			best = d
			name, marker = c.name, c.marker
		}
	}
	return fmt.Sprintf("%s %2.1f m/s %-2s %s (%3d°)",
		o.Time.Format("15:04"), o.AvgSpeed, name, marker, o.Direction)
}

func absDiff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}
