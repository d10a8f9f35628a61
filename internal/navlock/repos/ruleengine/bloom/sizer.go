package bloom

import (
	"math"

	"github.com/haukened/navlock/internal/navlock/repos/ruleengine"
)

// defaultFPRate applies when the configured bloom_fp_rate is outside (0, 1).
const defaultFPRate = 0.01

type sizer struct{}

// NewSizer returns a BloomSizer for n rule hosts at false-positive rate p:
//
//	m = ceil(-n ln p / (ln 2)^2)
//	k = round(m/n ln 2)
//
// Both are at least 1; an empty host set is sized as one host.
func NewSizer() ruleengine.BloomSizer { return sizer{} }

func (sizer) Size(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = defaultFPRate
	}
	bits := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	m := uint64(math.Max(1, bits))
	k := uint8(math.Max(1, math.Round(float64(m)/float64(n)*math.Ln2)))
	return m, k
}
