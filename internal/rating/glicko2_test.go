package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuelMovesRatingsApart(t *testing.T) {
	w, l := Duel(Standing{Rating: 1000}, Standing{Rating: 1000})

	assert.Positive(t, w.Delta)
	assert.Negative(t, l.Delta)
	assert.InDelta(t, w.Delta, -l.Delta, 1)
	assert.Less(t, w.Deviation, DefaultPhi)
	assert.Less(t, l.Deviation, DefaultPhi)
	assert.Greater(t, w.Volatility, 0.0)
}

func TestDuelUpsetIsWorthMore(t *testing.T) {
	expected, _ := Duel(Standing{Rating: 1400, Deviation: 80}, Standing{Rating: 1000, Deviation: 80})
	upset, _ := Duel(Standing{Rating: 1000, Deviation: 80}, Standing{Rating: 1400, Deviation: 80})

	assert.Positive(t, expected.Delta)
	assert.Greater(t, upset.Delta, expected.Delta)
}

func TestDuelSettledPlayerMovesLess(t *testing.T) {
	fresh, _ := Duel(Standing{Rating: 1200}, Standing{Rating: 1200, Deviation: 60})
	settled, _ := Duel(Standing{Rating: 1200, Deviation: 60}, Standing{Rating: 1200, Deviation: 60})

	assert.Greater(t, fresh.Delta, settled.Delta)
}
