package wind

import (
	"testing"
	"time"
)

// observationSequence produces readings one minute apart.
type observationSequence struct {
	time time.Time
}

func (s *observationSequence) next(avgSpeed float64, direction uint16) Observation {
	s.time = s.time.Add(time.Minute)
	return Observation{
		Time:      s.time,
		Direction: direction,
		AvgSpeed:  avgSpeed,
	}
}

func newSeqAndTracker(candidateSteps, cooldownSteps int) (*observationSequence, *Tracker) {
	seq := &observationSequence{
		time: time.Date(2022, 2, 1, 0, 0, 0, 0, time.FixedZone("", 10*3600)),
	}
	tracker := &Tracker{
		Sector:         NewSector(135, 225), // SE-SW
		SpeedThreshold: 5.0,
		CandidateSteps: candidateSteps,
		CooldownSteps:  cooldownSteps,
	}
	return seq, tracker
}

func step(t *testing.T, tracker *Tracker, obs Observation, wantState State, wantCount int) {
	t.Helper()
	tracker.Step(obs)
	if tracker.State() != wantState {
		t.Fatalf("after %v: state = %v, want %v", obs, tracker.State(), wantState)
	}
	if wantCount > 0 && tracker.StepCount() != wantCount {
		t.Fatalf("after %v: step count = %d, want %d", obs, tracker.StepCount(), wantCount)
	}
}

func TestTracker_FullCycle(t *testing.T) {
	seq, tracker := newSeqAndTracker(2, 2)

	step(t, tracker, seq.next(3.2, 180), Low, 0)
	step(t, tracker, seq.next(5.7, 180), Candidate, 1)
	step(t, tracker, seq.next(5.4, 180), Candidate, 2)
	step(t, tracker, seq.next(5.4, 180), High, 0)
	step(t, tracker, seq.next(3.5, 180), Cooldown, 1)
	step(t, tracker, seq.next(3.5, 180), Cooldown, 2)
	step(t, tracker, seq.next(4.1, 180), Low, 0)
}

func TestTracker_DirectionMismatchResets(t *testing.T) {
	seq, tracker := newSeqAndTracker(2, 2)

	step(t, tracker, seq.next(5.0, 180), Candidate, 1)
	// fast enough but wrong direction
	step(t, tracker, seq.next(5.0, 0), Low, 0)
}

func TestTracker_CandidateReset(t *testing.T) {
	seq, tracker := newSeqAndTracker(2, 2)

	step(t, tracker, seq.next(5.7, 180), Candidate, 1)
	step(t, tracker, seq.next(3.4, 180), Low, 0)
}

func TestTracker_CooldownReset(t *testing.T) {
	seq, tracker := newSeqAndTracker(0, 2)

	step(t, tracker, seq.next(5.7, 180), High, 0)
	step(t, tracker, seq.next(3.7, 180), Cooldown, 1)
	step(t, tracker, seq.next(5.4, 180), High, 0)
}

func TestTracker_EventFiresOnlyOnRise(t *testing.T) {
	seq, tracker := newSeqAndTracker(1, 1)

	if tracker.Step(seq.next(5.5, 180)) {
		t.Error("entering Candidate should not fire")
	}
	if !tracker.Step(seq.next(5.5, 180)) {
		t.Error("rising Candidate -> High should fire")
	}
	if tracker.Step(seq.next(5.5, 180)) {
		t.Error("staying High should not fire")
	}
	if tracker.Step(seq.next(2.0, 180)) {
		t.Error("entering Cooldown should not fire")
	}
	// recovery from cooldown returns to High without a new event
	if tracker.Step(seq.next(5.5, 180)) {
		t.Error("Cooldown -> High should not fire")
	}
}

func TestTracker_ZeroCandidateStepsFiresImmediately(t *testing.T) {
	seq, tracker := newSeqAndTracker(0, 0)

	if !tracker.Step(seq.next(6.0, 180)) {
		t.Error("with zero candidate steps the first matching reading should fire")
	}
	if tracker.State() != High {
		t.Errorf("state = %v, want High", tracker.State())
	}
}
