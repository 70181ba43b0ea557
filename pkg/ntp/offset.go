package ntp

// EstimateOffset computes the clock offset of RFC 4330 section 5 from the
// receive (T2), originate (T1), transmit (T3) and destination (T4)
// timestamps:
//
//	offset = ((T2 - T1) + (T3 - T4)) / 2
//
// Only whole seconds take part in the computation, fractions are dropped.
// The division truncates toward zero, so an odd sum of -19 yields -9.
func EstimateOffset(receive, originate, transmit, destination Timestamp) int64 {
	return ((int64(receive.Seconds) - int64(originate.Seconds)) +
		(int64(transmit.Seconds) - int64(destination.Seconds))) / 2
}

// RoundTripDelay computes (T4 - T1) - (T3 - T2) in whole seconds.
func RoundTripDelay(receive, originate, transmit, destination Timestamp) int64 {
	return (int64(destination.Seconds) - int64(originate.Seconds)) -
		(int64(transmit.Seconds) - int64(receive.Seconds))
}
