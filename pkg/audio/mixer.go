package audio

// Mix sums equally sized mono frames sample by sample with saturation. The
// result has the length of the longest frame; shorter frames count as
// silence past their end. No gain is applied, matching amix with
// normalize=0.
func Mix(frames ...[]int16) []int16 {
	n := 0
	for _, f := range frames {
		if len(f) > n {
			n = len(f)
		}
	}
	if n == 0 {
		return nil
	}

	// int64 accumulator so any number of inputs can be summed before clamping.
	acc := make([]int64, n)
	for _, f := range frames {
		for i, s := range f {
			acc[i] += int64(s)
		}
	}

	mixed := make([]int16, n)
	for i, v := range acc {
		mixed[i] = saturateInt16(v)
	}
	return mixed
}
