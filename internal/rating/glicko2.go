// internal/rating/glicko2.go
package rating

import "math"

const (
	// DefaultPhi is the rating deviation of a player with no ranked history.
	DefaultPhi = 350.0
	// DefaultSigma is the starting volatility of a fresh player.
	DefaultSigma = 0.06

	// glicko2 scale conversion; ratings are stored on the 1500-centered display scale
	scale  = 173.7178
	center = 1500.0

	// tau limits how fast volatility moves.
	tau     = 0.5
	epsilon = 0.000001
)

// Standing is one player's ranked rating going into a match.
type Standing struct {
	Rating     int
	Deviation  float64
	Volatility float64
}

// Change is the result of a ranked match for one player. Delta is applied to the
// stored rating; Deviation and Volatility replace the stored values.
type Change struct {
	Delta      int
	Deviation  float64
	Volatility float64
}

// point is a standing on the internal glicko2 scale.
type point struct {
	mu, phi, sigma float64
}

func (s Standing) point() point {
	rd, sigma := s.Deviation, s.Volatility
	if rd <= 0 {
		rd = DefaultPhi
	}
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	return point{
		mu:    (float64(s.Rating) - center) / scale,
		phi:   rd / scale,
		sigma: sigma,
	}
}

func (p point) change(before Standing) Change {
	return Change{
		Delta:      int(math.Round(p.mu*scale+center)) - before.Rating,
		Deviation:  p.phi * scale,
		Volatility: p.sigma,
	}
}

// Duel applies a single Glicko2 update to both sides of a decided 1v1 match.
// Duels never draw; the tie-break always produces a winner.
func Duel(winner, loser Standing) (Change, Change) {
	w, l := winner.point(), loser.point()
	return w.against(l, 1).change(winner), l.against(w, 0).change(loser)
}

// against rates p after one game versus opp with the given score (1 win, 0 loss).
func (p point) against(opp point, score float64) point {
	g := 1 / math.Sqrt(1+3*opp.phi*opp.phi/(math.Pi*math.Pi))
	expected := 1 / (1 + math.Exp(-g*(p.mu-opp.mu)))

	v := 1 / (g * g * expected * (1 - expected))
	delta := v * g * (score - expected)

	sigma := p.volatility(v, delta)
	phiStar := math.Sqrt(p.phi*p.phi + sigma*sigma)
	phi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)

	return point{
		mu:    p.mu + phi*phi*g*(score-expected),
		phi:   phi,
		sigma: sigma,
	}
}

// volatility solves for the new sigma with the Illinois variant of regula falsi.
func (p point) volatility(v, delta float64) float64 {
	phi2, delta2 := p.phi*p.phi, delta*delta
	a := math.Log(p.sigma * p.sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi2 + v + ex
		return ex*(delta2-phi2-v-ex)/(2*d*d) - (x-a)/(tau*tau)
	}

	lo := a
	var hi float64
	if delta2 > phi2+v {
		hi = math.Log(delta2 - phi2 - v)
	} else {
		k := 1.0
		for f(a-k*tau) < 0 {
			k++
		}
		hi = a - k*tau
	}

	fLo, fHi := f(lo), f(hi)
	for i := 0; i < 100 && math.Abs(hi-lo) > epsilon; i++ {
		c := lo + (lo-hi)*fLo/(fHi-fLo)
		fC := f(c)
		if fC*fHi <= 0 {
			lo, fLo = hi, fHi
		} else {
			fLo /= 2
		}
		hi, fHi = c, fC
	}
	return math.Exp(lo / 2)
}
