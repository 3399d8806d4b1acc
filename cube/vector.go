package cube

import "math"

// PolarizationVectors derives linear polarization intensity and angle
// maps from Stokes Q and U planes. Pixels whose intensity falls below
// threshold are NaN in both outputs. Angles are in radians, measured
// counterclockwise from north, half the Q/U phase by convention.
func PolarizationVectors(q, u []float32, threshold float64) (intensity, angle []float64) {
	n := len(q)
	if len(u) < n {
		n = len(u)
	}
	intensity = make([]float64, n)
	angle = make([]float64, n)

	for i := 0; i < n; i++ {
		qv := float64(q[i])
		uv := float64(u[i])
		if math.IsNaN(qv) || math.IsNaN(uv) {
			intensity[i] = math.NaN()
			angle[i] = math.NaN()
			continue
		}
		p := math.Hypot(qv, uv)
		if p < threshold {
			intensity[i] = math.NaN()
			angle[i] = math.NaN()
			continue
		}
		intensity[i] = p
		angle[i] = 0.5 * math.Atan2(uv, qv)
	}
	return intensity, angle
}
