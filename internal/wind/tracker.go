package wind

// Tracker states. Candidate and Cooldown are transient hysteresis states
// between the two stable ones.
type State int

const (
	Low State = iota
	Candidate
	High
	Cooldown
)

func (s State) String() string {
	switch s {
	case Low:
		return "low"
	case Candidate:
		return "candidate"
	case High:
		return "high"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Tracker is the wind condition state machine. It requires CandidateSteps
// consecutive matching observations to move Low → High, and CooldownSteps
// consecutive non-matching ones to reset High → Low, which keeps a gusty
// borderline wind from firing an alert on every reading.
type Tracker struct {
	Sector         Sector
	SpeedThreshold float64
	CandidateSteps int
	CooldownSteps  int

	state State
	count int
}

// Step advances the machine by one observation and reports whether the
// alert event fired, i.e. the machine just rose into High from Low or
// Candidate.
func (t *Tracker) Step(o Observation) bool {
	before := t.state
	match := o.AvgSpeed >= t.SpeedThreshold && t.Sector.Contains(o.Direction)

	if match {
		switch t.state {
		case High:
			// stays high
		case Low:
			if t.CandidateSteps == 0 {
				t.state = High
			} else {
				t.state, t.count = Candidate, 1
			}
		case Candidate:
			if t.count >= t.CandidateSteps {
				t.state = High
			} else {
				t.count++
			}
		case Cooldown:
			t.state = High
		}
	} else {
		switch t.state {
		case Low, Candidate:
			t.state = Low
		case High:
			if t.CooldownSteps == 0 {
				t.state = Low
			} else {
				t.state, t.count = Cooldown, 1
			}
		case Cooldown:
			if t.count >= t.CooldownSteps {
				t.state = Low
			} else {
				t.count++
			}
		}
	}

	return t.state == High && (before == Low || before == Candidate)
}

// State returns the current machine state.
func (t *Tracker) State() State {
	return t.state
}

// StepCount returns the progress counter inside Candidate or Cooldown.
func (t *Tracker) StepCount() int {
	return t.count
}
