package milp

// presolve eliminates variables whose bounds pin them to a single
// value (lower == upper), folding their contribution into each
// constraint's RHS and into the objective constant, adapted from the
// teacher's preProcessor.filterFixedVars. It returns the reduced
// variable list, a translation from reduced index to original index,
// and the objective constant contributed by the fixed variables (added
// back onto the reported objective after solving).
func presolveFixedVariables(vars []variableRecord, cons []constraintRecord, objective []float64) (reducedVars []variableRecord, keep []int, fixedValues map[int]float64, objectiveConstant float64, reducedCons []constraintRecord) {
	fixedValues = make(map[int]float64)
	keep = make([]int, 0, len(vars))
	reducedVars = make([]variableRecord, 0, len(vars))

	for i, v := range vars {
		if v.lower == v.upper {
			fixedValues[i] = v.lower
			objectiveConstant += objective[i] * v.lower
			continue
		}
		keep = append(keep, i)
		reducedVars = append(reducedVars, v)
	}

	if len(fixedValues) == 0 {
		return vars, identity(len(vars)), fixedValues, 0, cons
	}

	origToReduced := make(map[int]int, len(keep))
	for newIdx, oldIdx := range keep {
		origToReduced[oldIdx] = newIdx
	}

	reducedCons = make([]constraintRecord, len(cons))
	for ci, con := range cons {
		newCon := constraintRecord{name: con.name, kind: con.kind, removed: con.removed, coeffs: make(map[int]float64)}
		rhs := con.rhs
		for idx, coef := range con.coeffs {
			if fv, isFixed := fixedValues[idx]; isFixed {
				rhs -= coef * fv
				continue
			}
			newCon.coeffs[origToReduced[idx]] = coef
		}
		newCon.rhs = rhs
		reducedCons[ci] = newCon
	}

	return reducedVars, keep, fixedValues, objectiveConstant, reducedCons
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// expandSolution re-inserts fixed-variable values into a reduced
// solution vector, producing a vector indexed like the original
// (pre-presolve) variable list.
func expandSolution(reduced []float64, keep []int, fixedValues map[int]float64, totalVars int) []float64 {
	out := make([]float64, totalVars)
	for idx, val := range fixedValues {
		out[idx] = val
	}
	for newIdx, oldIdx := range keep {
		out[oldIdx] = reduced[newIdx]
	}
	return out
}
