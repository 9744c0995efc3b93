// Package algebra implements the polynomial layer every constraint and
// objective in MetaOpt is expressed over: terms of degree at most two in
// a single decision variable, with no automatic simplification, so that
// rewrites can reason about declared structure (e.g. identify the
// coefficient of a specific dual variable) rather than a normalized form.
package algebra

// VarHandle is the opaque identity of a decision variable owned by a
// solver session. algebra never creates or inspects variables itself;
// it only carries handles around inside polynomials. Defining the
// interface here (rather than importing package solver) avoids a
// solver <-> algebra import cycle, since solver embeds Polynomial in
// its own Constraint type.
type VarHandle interface {
	// ID returns a string unique within the owning solver session.
	ID() string
}

// Term is a coefficient multiplied by either a constant (Variable == nil),
// a variable (Exponent == 1), or a variable squared (Exponent == 2).
// Degree is never greater than two: quadratic terms appear only
// transiently, inside rewrites that linearize them before they reach a
// solver backend.
type Term struct {
	Coefficient float64
	Variable    VarHandle
	Exponent    int
}

// IsConstant reports whether this term carries no variable.
func (t Term) IsConstant() bool {
	return t.Variable == nil
}

// Negate returns the additive inverse of t.
func (t Term) Negate() Term {
	return Term{Coefficient: -t.Coefficient, Variable: t.Variable, Exponent: t.Exponent}
}

// ConstantTerm builds a degree-0 term.
func ConstantTerm(c float64) Term {
	return Term{Coefficient: c}
}

// LinearTerm builds a degree-1 term for v.
func LinearTerm(coef float64, v VarHandle) Term {
	return Term{Coefficient: coef, Variable: v, Exponent: 1}
}

// QuadraticTerm builds a degree-2 term for v. Quadratic terms are only
// legal inside a rewrite that intends to linearize them before handing
// the polynomial to a solver backend; addLeqZero/addEqZero reject them.
func QuadraticTerm(coef float64, v VarHandle) Term {
	return Term{Coefficient: coef, Variable: v, Exponent: 2}
}
