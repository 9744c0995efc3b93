package milp

import "math"

// maxFunBranchPoint chooses the integrality-constrained variable with
// the highest absolute objective coefficient.
func maxFunBranchPoint(c []float64, integrality []bool) int {
	var candidateValue float64
	currentCandidate := -1
	for i, v := range c {
		if integrality[i] {
			if currentCandidate == -1 || math.Abs(v) >= candidateValue {
				currentCandidate = i
				candidateValue = math.Abs(v)
			}
		}
	}
	return currentCandidate
}

// mostInfeasibleBranchPoint chooses the integrality-constrained variable
// whose current LP-relaxation value has fractional part closest to 1/2.
func mostInfeasibleBranchPoint(x []float64, integrality []bool) int {
	candidateRemainder := 1.0
	currentCandidate := -1
	for i, v := range x {
		if integrality[i] {
			_, f := math.Modf(v)
			if f < 0 {
				f = -f
			}
			remainder := math.Abs(0.5 - f)
			if currentCandidate == -1 || remainder <= candidateRemainder {
				currentCandidate = i
				candidateRemainder = remainder
			}
		}
	}
	return currentCandidate
}

// naiveBranchPoint cycles through integrality-constrained variables in
// index order, starting after the last variable branched on.
func naiveBranchPoint(last int, integrality []bool) int {
	n := len(integrality)
	if last < 0 {
		for i := 0; i < n; i++ {
			if integrality[i] {
				return i
			}
		}
		return -1
	}
	cursor := last
	for i := 0; i < n; i++ {
		cursor = (cursor + 1) % n
		if integrality[cursor] {
			return cursor
		}
	}
	return -1
}

// fractionalIndex returns the index of an integrality-constrained
// variable whose value in x is not within eps of an integer, or -1 if
// none exists (the node is integer-feasible).
func fractionalIndex(x []float64, integrality []bool, eps float64) int {
	for i, isInt := range integrality {
		if !isInt {
			continue
		}
		r := x[i] - math.Round(x[i])
		if r < 0 {
			r = -r
		}
		if r > eps {
			return i
		}
	}
	return -1
}

// violatingSOS1Group returns the index (into groups) of the first SOS-1
// group with more than one non-zero member in x, and the member indices
// found non-zero, or (-1, nil) if every group is satisfied.
func violatingSOS1Group(x []float64, groups [][]int, fixed map[int]bool, eps float64) (int, []int) {
	for gi, group := range groups {
		var nonzero []int
		for _, idx := range group {
			if fixed[idx] {
				continue
			}
			if idx >= len(x) {
				continue
			}
			if math.Abs(x[idx]) > eps {
				nonzero = append(nonzero, idx)
			}
		}
		if len(nonzero) > 1 {
			return gi, nonzero
		}
	}
	return -1, nil
}
