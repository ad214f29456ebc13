package utils

import "math"

const earthRadiusMeters = 6371000

// HaversineMeters returns the great-circle distance between two
// coordinates in meters.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// HammingDistance counts differing positions between two equal-length
// fingerprints. Unequal lengths are treated as maximally distant.
func HammingDistance(hash1, hash2 string) int {
	if len(hash1) != len(hash2) {
		return math.MaxInt
	}
	distance := 0
	for i := 0; i < len(hash1); i++ {
		if hash1[i] != hash2[i] {
			distance++
		}
	}
	return distance
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// Clamp01 clamps v to the [0,1] interval.
func Clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
