package wind

import "testing"

func TestSector_Contains(t *testing.T) {
	tests := []struct {
		name   string
		sector Sector
		angle  uint16
		want   bool
	}{
		{"simple sector includes lower bound", NewSector(0, 45), 0, true},
		{"simple sector includes middle", NewSector(0, 45), 30, true},
		{"simple sector includes upper bound", NewSector(0, 45), 45, true},
		{"simple sector excludes just above", NewSector(0, 45), 46, false},
		{"simple sector excludes far angle", NewSector(0, 45), 359, false},
		{"wrapping sector includes north", NewSector(280, 90), 0, true},
		{"wrapping sector includes before wrap", NewSector(280, 90), 290, true},
		{"wrapping sector includes after wrap", NewSector(280, 90), 80, true},
		{"wrapping sector excludes south", NewSector(280, 90), 180, false},
		{"wrapping sector excludes just outside", NewSector(280, 90), 279, false},
		{"angle is normalized mod 360", NewSector(0, 45), 360, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sector.Contains(tt.angle); got != tt.want {
				t.Errorf("Sector(%d,%d).Contains(%d) = %v, want %v",
					tt.sector.From, tt.sector.To, tt.angle, got, tt.want)
			}
		})
	}
}

func TestSector_CompassConstants(t *testing.T) {
	if !North180.Contains(0) {
		t.Error("North180 should contain 0°")
	}
	if North180.Contains(180) {
		t.Error("North180 should not contain 180°")
	}
	if !South90.Contains(180) {
		t.Error("South90 should contain 180°")
	}
	if South90.Contains(0) {
		t.Error("South90 should not contain 0°")
	}
}
