package algebra

// Polynomial is an ordered multiset of terms. Order is preserved across
// Add/Copy so that tests relying on structural (not semantic) equality
// remain meaningful, per the §4.1 contract: simplification is permitted
// but never required.
type Polynomial struct {
	terms []Term
}

// NewPolynomial builds a polynomial from the given terms, in order.
func NewPolynomial(terms ...Term) Polynomial {
	p := Polynomial{terms: make([]Term, len(terms))}
	copy(p.terms, terms)
	return p
}

// Zero is the empty polynomial.
func Zero() Polynomial {
	return Polynomial{}
}

// Constant builds a single-term constant polynomial.
func Constant(c float64) Polynomial {
	if c == 0 {
		return Zero()
	}
	return NewPolynomial(ConstantTerm(c))
}

// Linear builds a single-term linear polynomial coef*v.
func Linear(coef float64, v VarHandle) Polynomial {
	return NewPolynomial(LinearTerm(coef, v))
}

// Terms returns the terms of p in declaration order. The returned slice
// is owned by the caller; mutating it does not affect p.
func (p Polynomial) Terms() []Term {
	out := make([]Term, len(p.terms))
	copy(out, p.terms)
	return out
}

// Len reports the number of terms.
func (p Polynomial) Len() int {
	return len(p.terms)
}

// AddTerm appends a single term, returning a new polynomial.
func (p Polynomial) AddTerm(t Term) Polynomial {
	out := Polynomial{terms: make([]Term, len(p.terms)+1)}
	copy(out.terms, p.terms)
	out.terms[len(p.terms)] = t
	return out
}

// Add concatenates the terms of p and q into a new polynomial. No
// combining of like terms is performed.
func (p Polynomial) Add(q Polynomial) Polynomial {
	out := Polynomial{terms: make([]Term, 0, len(p.terms)+len(q.terms))}
	out.terms = append(out.terms, p.terms...)
	out.terms = append(out.terms, q.terms...)
	return out
}

// Negate returns a polynomial in which every term's coefficient is
// negated; term order is preserved.
func (p Polynomial) Negate() Polynomial {
	out := Polynomial{terms: make([]Term, len(p.terms))}
	for i, t := range p.terms {
		out.terms[i] = t.Negate()
	}
	return out
}

// Scale multiplies every term's coefficient by k.
func (p Polynomial) Scale(k float64) Polynomial {
	out := Polynomial{terms: make([]Term, len(p.terms))}
	for i, t := range p.terms {
		out.terms[i] = Term{Coefficient: t.Coefficient * k, Variable: t.Variable, Exponent: t.Exponent}
	}
	return out
}

// Copy returns an independent polynomial with the same terms.
func (p Polynomial) Copy() Polynomial {
	out := Polynomial{terms: make([]Term, len(p.terms))}
	copy(out.terms, p.terms)
	return out
}

// IsLinear reports whether every term has exponent <= 1. Rewrites and
// solver backends that cannot accept quadratic terms call this before
// submitting a polynomial as a constraint.
func (p Polynomial) IsLinear() bool {
	for _, t := range p.terms {
		if t.Exponent > 1 {
			return false
		}
	}
	return true
}

// CoefficientOf returns the sum of coefficients of every degree-1 term
// referencing v (zero if v does not appear linearly). Used by rewrites
// that need to read off a specific dual variable's coefficient from a
// declared stationarity polynomial without requiring prior
// simplification.
func (p Polynomial) CoefficientOf(v VarHandle) float64 {
	var sum float64
	for _, t := range p.terms {
		if t.Exponent == 1 && t.Variable == v {
			sum += t.Coefficient
		}
	}
	return sum
}

// ConstantValue returns the sum of the constant (degree-0) terms.
func (p Polynomial) ConstantValue() float64 {
	var sum float64
	for _, t := range p.terms {
		if t.IsConstant() {
			sum += t.Coefficient
		}
	}
	return sum
}

// Simplify combines like terms (same variable, same exponent) into a
// single term and drops any term that nets to a zero coefficient.
// Simplification is never required by the contract (§4.1); callers
// that want a canonical form for comparison opt into it explicitly.
func (p Polynomial) Simplify() Polynomial {
	type key struct {
		v VarHandle
		e int
	}
	order := make([]key, 0, len(p.terms))
	sums := make(map[key]float64, len(p.terms))
	for _, t := range p.terms {
		k := key{v: t.Variable, e: t.Exponent}
		if _, seen := sums[k]; !seen {
			order = append(order, k)
		}
		sums[k] += t.Coefficient
	}
	out := Polynomial{}
	for _, k := range order {
		c := sums[k]
		if c == 0 {
			continue
		}
		out.terms = append(out.terms, Term{Coefficient: c, Variable: k.v, Exponent: k.e})
	}
	return out
}

// SubstituteLinear replaces every occurrence of the variable x inside p
// by the linear expression sum(coeffs[v]*v) + constant, preserving the
// coefficient x appeared with. rewrite.QuantizedInput.SubstitutionCoeffs
// builds the coeffs table for a quantized input; no package in this
// module calls SubstituteLinear itself (the primal-dual rewrite expands
// inputs through rewrite.LinearizeProductSum instead).
//
// x must appear only linearly (Exponent == 1); SubstituteLinear panics
// if it encounters x at any other exponent, since quadratic substitution
// is not part of this contract.
func SubstituteLinear(p Polynomial, x VarHandle, coeffs map[VarHandle]float64, constant float64) Polynomial {
	out := Polynomial{terms: make([]Term, 0, len(p.terms))}
	for _, t := range p.terms {
		if t.Variable != x {
			out.terms = append(out.terms, t)
			continue
		}
		if t.Exponent != 1 {
			panic("algebra: SubstituteLinear encountered substituted variable at exponent != 1")
		}
		if constant != 0 {
			out.terms = append(out.terms, ConstantTerm(t.Coefficient*constant))
		}
		for v, k := range coeffs {
			out.terms = append(out.terms, LinearTerm(t.Coefficient*k, v))
		}
	}
	return out
}
