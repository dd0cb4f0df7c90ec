package audio

// Resample converts mono PCM16 samples from srcRate to dstRate using linear
// interpolation between the nearest source samples. The output holds
// floor(len(samples) * dstRate / srcRate) samples; the right-hand neighbour is
// clamped at the end of the input.
//
// The arithmetic is integer-only (round half away from zero), so identical
// inputs always produce identical outputs.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if len(samples) == 0 || srcRate <= 0 || dstRate <= 0 {
		return nil
	}
	if srcRate == dstRate {
		return samples
	}

	src := int64(srcRate)
	dst := int64(dstRate)
	n := int64(len(samples)) * dst / src
	if n == 0 {
		return nil
	}

	last := len(samples) - 1
	out := make([]int16, n)
	for i := int64(0); i < n; i++ {
		pos := i * src
		idx := int(pos / dst)
		rem := pos % dst

		s0 := int64(samples[idx])
		s1 := s0
		if idx < last {
			s1 = int64(samples[idx+1])
		}

		delta := (s1 - s0) * rem
		if delta >= 0 {
			delta = (delta + dst/2) / dst
		} else {
			delta = (delta - dst/2) / dst
		}
		out[i] = saturateInt16(s0 + delta)
	}
	return out
}

// saturateInt16 clamps v to the valid int16 range.
func saturateInt16(v int64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
