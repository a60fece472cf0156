package helio

import "math"

// poleTolerance is the smallest circle-of-latitude radius, in metres, for
// which a drift is still computed.
const poleTolerance = 1e-6

// ElapsedSeconds is the signed time offset of frame index from the centre
// frame.
func ElapsedSeconds(index, center int, step float64) float64 {
	return float64(index-center) * step
}

// CenterIndex is the reference frame of a series of n frames.
func CenterIndex(n int) int { return n / 2 }

// ShiftedOrigin moves the base origin along its circle of latitude by the
// arc a point travelling at spec.DriftVelocity covers in elapsedSeconds.
// The returned longitude is normalised to [0, 360).
func ShiftedOrigin(spec OriginSpec, elapsedSeconds float64, obs Observation) (Coordinate, error) {
	out := Coordinate{
		Longitude:   spec.Longitude,
		Latitude:    spec.Latitude,
		Observation: obs,
	}
	if spec.DriftVelocity == 0 {
		return out, nil
	}

	radius := spec.BodyRadius * 1e6 * math.Cos(spec.Latitude*math.Pi/180)
	if math.Abs(radius) < poleTolerance {
		return Coordinate{}, ErrPolarOrigin
	}
	omega := spec.DriftVelocity / radius
	delta := omega * elapsedSeconds * 180 / math.Pi

	out.Longitude = normalizeLongitude(spec.Longitude + delta)
	return out, nil
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}
