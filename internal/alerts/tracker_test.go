package alerts

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdant/internal/events"
)

func testLog() zerolog.Logger {
	return zerolog.Nop()
}

// feed runs one evaluation+check round for a single MIN rule.
func feed(t *Tracker, min Rule, value float64) State {
	sensor := events.NamedSensor("temperature")
	state := t.StateOf(events.NamespaceDHT, sensor)
	violated := min.Violated(value, state)
	return t.Check(events.NamespaceDHT, sensor, value, violated, min)
}

func TestRuleViolated(t *testing.T) {
	min := Rule{Kind: RuleMin, Value: 18, Hysteresis: 2}
	max := Rule{Kind: RuleMax, Value: 30, Hysteresis: 2}

	// OK state: plain thresholds, boundary values do not violate.
	assert.False(t, min.Violated(18, StateOK))
	assert.True(t, min.Violated(17.9, StateOK))
	assert.False(t, max.Violated(30, StateOK))
	assert.True(t, max.Violated(30.1, StateOK))

	// IN_ALERT: the hysteresis band keeps the rule violated.
	assert.True(t, min.Violated(19.9, StateInAlert))
	assert.False(t, min.Violated(20, StateInAlert))
	assert.True(t, max.Violated(28.1, StateInAlert))
	assert.False(t, max.Violated(28, StateInAlert))
}

func TestEvaluateAxisPicksViolatedRule(t *testing.T) {
	min := Rule{Kind: RuleMin, Value: 18, Hysteresis: 2}
	max := Rule{Kind: RuleMax, Value: 30, Hysteresis: 2}

	violated, rule := EvaluateAxis(15, min, max, StateOK)
	require.True(t, violated)
	assert.Equal(t, RuleMin, rule.Kind)

	violated, rule = EvaluateAxis(35, min, max, StateOK)
	require.True(t, violated)
	assert.Equal(t, RuleMax, rule.Kind)

	violated, _ = EvaluateAxis(22, min, max, StateOK)
	assert.False(t, violated)
}

func TestTrackerRequiresConsecutiveConfirmations(t *testing.T) {
	tr := NewTracker(testLog())
	min := Rule{Kind: RuleMin, Value: 18, Hysteresis: 2}

	var transitions []Transition
	tr.RegisterCallback(events.NamespaceDHT, func(t Transition) {
		transitions = append(transitions, t)
	})

	// Two violations then a recovery: counter resets, no alert.
	assert.Equal(t, StateOK, feed(tr, min, 15))
	assert.Equal(t, StateOK, feed(tr, min, 15))
	assert.Equal(t, StateOK, feed(tr, min, 20))
	assert.Empty(t, transitions)

	// Three consecutive violations commit the alert on the third.
	assert.Equal(t, StateOK, feed(tr, min, 15))
	assert.Equal(t, StateOK, feed(tr, min, 15))
	assert.Equal(t, StateInAlert, feed(tr, min, 15))
	require.Len(t, transitions, 1)
	assert.Equal(t, StateInAlert, transitions[0].State)
	require.NotNil(t, transitions[0].Rule)
	assert.Equal(t, 18, transitions[0].Rule.Value)
	assert.Equal(t, float64(15), transitions[0].Value)

	// No duplicate alert while the violation persists.
	assert.Equal(t, StateInAlert, feed(tr, min, 15))
	assert.Len(t, transitions, 1)
}

func TestTrackerResolutionNeedsClearOfHysteresisBand(t *testing.T) {
	tr := NewTracker(testLog())
	min := Rule{Kind: RuleMin, Value: 18, Hysteresis: 2}

	var transitions []Transition
	tr.RegisterCallback(events.NamespaceDHT, func(t Transition) {
		transitions = append(transitions, t)
	})

	for i := 0; i < 3; i++ {
		feed(tr, min, 15)
	}
	require.Len(t, transitions, 1)

	// 19 is above the threshold but inside the band: still violated.
	assert.Equal(t, StateInAlert, feed(tr, min, 19))
	assert.Equal(t, StateInAlert, feed(tr, min, 19))
	assert.Equal(t, StateInAlert, feed(tr, min, 19))
	assert.Len(t, transitions, 1)

	// 21 clears the band; three in a row resolve.
	assert.Equal(t, StateInAlert, feed(tr, min, 21))
	assert.Equal(t, StateInAlert, feed(tr, min, 21))
	assert.Equal(t, StateOK, feed(tr, min, 21))
	require.Len(t, transitions, 2)
	assert.Equal(t, StateOK, transitions[1].State)
	assert.Nil(t, transitions[1].Rule)
}

func TestTrackerFlappingNeverCommits(t *testing.T) {
	tr := NewTracker(testLog())
	min := Rule{Kind: RuleMin, Value: 18, Hysteresis: 2}

	var fired int
	tr.RegisterCallback(events.NamespaceDHT, func(Transition) { fired++ })

	// Alternating readings straddling the threshold.
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			feed(tr, min, 15)
		} else {
			feed(tr, min, 25)
		}
	}
	assert.Zero(t, fired)
	assert.Equal(t, StateOK, tr.StateOf(events.NamespaceDHT, events.NamedSensor("temperature")))
}

func TestTrackerKeysAreIndependent(t *testing.T) {
	tr := NewTracker(testLog(), WithConfirmations(1))
	min := Rule{Kind: RuleMin, Value: 40, Hysteresis: 5}

	tr.Check(events.NamespacePico, events.PlantSensor(1), 20, true, min)
	assert.Equal(t, StateInAlert, tr.StateOf(events.NamespacePico, events.PlantSensor(1)))
	assert.Equal(t, StateOK, tr.StateOf(events.NamespacePico, events.PlantSensor(2)))
	assert.Equal(t, StateOK, tr.StateOf(events.NamespaceDHT, events.NamedSensor("humidity")))
}

func TestTrackerCallbacksPerNamespace(t *testing.T) {
	tr := NewTracker(testLog(), WithConfirmations(1))
	min := Rule{Kind: RuleMin, Value: 40, Hysteresis: 5}

	var dht, pico int
	tr.RegisterCallback(events.NamespaceDHT, func(Transition) { dht++ })
	tr.RegisterCallback(events.NamespacePico, func(Transition) { pico++ })

	tr.Check(events.NamespacePico, events.PlantSensor(3), 10, true, min)
	assert.Zero(t, dht)
	assert.Equal(t, 1, pico)
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(testLog(), WithConfirmations(1))
	min := Rule{Kind: RuleMin, Value: 18, Hysteresis: 2}

	tr.Check(events.NamespaceDHT, events.NamedSensor("temperature"), 10, true, min)
	require.Equal(t, StateInAlert, tr.StateOf(events.NamespaceDHT, events.NamedSensor("temperature")))

	tr.Reset()
	assert.Equal(t, StateOK, tr.StateOf(events.NamespaceDHT, events.NamedSensor("temperature")))
}

func TestTrackerScopedReset(t *testing.T) {
	tr := NewTracker(testLog(), WithConfirmations(1))
	min := Rule{Kind: RuleMin, Value: 40, Hysteresis: 5}

	tr.Check(events.NamespaceDHT, events.NamedSensor("humidity"), 10, true, min)
	tr.Check(events.NamespacePico, events.PlantSensor(1), 10, true, min)
	tr.Check(events.NamespacePico, events.PlantSensor(2), 10, true, min)

	tr.Reset(string(events.NamespacePico), events.PlantSensor(1).String())
	assert.Equal(t, StateOK, tr.StateOf(events.NamespacePico, events.PlantSensor(1)))
	assert.Equal(t, StateInAlert, tr.StateOf(events.NamespacePico, events.PlantSensor(2)))
	assert.Equal(t, StateInAlert, tr.StateOf(events.NamespaceDHT, events.NamedSensor("humidity")))

	tr.Reset(string(events.NamespacePico))
	assert.Equal(t, StateOK, tr.StateOf(events.NamespacePico, events.PlantSensor(2)))
	assert.Equal(t, StateInAlert, tr.StateOf(events.NamespaceDHT, events.NamedSensor("humidity")))
}

func TestWithConfirmationsClampsToOne(t *testing.T) {
	tr := NewTracker(testLog(), WithConfirmations(0))
	min := Rule{Kind: RuleMin, Value: 18, Hysteresis: 2}

	state := tr.Check(events.NamespaceDHT, events.NamedSensor("temperature"), 10, true, min)
	assert.Equal(t, StateInAlert, state)
}
