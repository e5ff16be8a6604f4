package mjcf

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat renders a float the way generated MJCF attributes spell them:
// shortest round-trip decimal form, with integral values keeping one decimal
// place ("500.0", not "500").
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
