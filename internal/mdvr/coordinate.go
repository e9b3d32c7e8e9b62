package mdvr

// The vendor's integer-scaled coordinate encoding: degrees * 1e6.
const coordinateScale = 1_000_000.0

// ScaledToDegrees converts an integer-scaled coordinate (degrees * 1e6)
// to decimal degrees. The scale is applied unconditionally for the
// dialects that declare it; magnitude is never sniffed, so positions
// near the 0.0/0.0 null island stay intact.
func ScaledToDegrees(n Number) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value / coordinateScale
	return &v
}

// DecimalDegrees passes a coordinate through for dialects that already
// report decimal degrees.
func DecimalDegrees(n Number) *float64 {
	return n.Ptr()
}

// SpeedScaledTenth converts a speed reported in 0.1 km/h units.
func SpeedScaledTenth(n Number) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value / 10
	return &v
}

// SpeedAdaptive handles the legacy dialect's mixed speed encoding:
// values above 1000 are 0.1 km/h units, anything else is already km/h.
func SpeedAdaptive(n Number) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	if v > 1000 {
		v /= 10
	}
	return &v
}
