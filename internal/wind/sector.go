package wind

// Sector is a circle sector given as two angles in clockwise order, so
// NewSector(270, 90) is the upper half circle and NewSector(90, 270) the
// lower.
type Sector struct {
	From uint16
	To   uint16
}

var (
	North180 = Sector{270, 90}
	South180 = Sector{90, 270}
	East180  = Sector{0, 180}
	West180  = Sector{180, 0}
	North90  = Sector{315, 45}
	East90   = Sector{45, 135}
	South90  = Sector{135, 225}
	West90   = Sector{225, 315}
)

func NewSector(from, to uint16) Sector {
	return Sector{From: from, To: to}
}

// Contains reports whether the angle (degrees) lies in the sector,
// handling the wraparound at north.
func (s Sector) Contains(angle uint16) bool {
	angle = angle % 360
	if s.From <= s.To {
		return s.From <= angle && angle <= s.To
	}
	return s.From <= angle || angle <= s.To
}
