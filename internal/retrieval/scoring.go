package retrieval

// maxSim computes the late-interaction (MaxSim) score between a query and a
// page: for each query vector, the maximum dot product over all page vectors,
// summed across query vectors. Higher is more relevant. An empty page
// embedding scores zero.
func maxSim(query, page [][]float32) float32 {
	var total float32
	for _, qv := range query {
		var best float32
		found := false
		for _, pv := range page {
			s := dot(qv, pv)
			if !found || s > best {
				best = s
				found = true
			}
		}
		if found {
			total += best
		}
	}
	return total
}

// dot returns the dot product over the shared prefix of a and b. Vectors from
// the same embedding model always have equal length; the min guard keeps a
// dimension mismatch from panicking mid-request.
func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
