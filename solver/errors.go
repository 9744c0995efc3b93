package solver

import "fmt"

// This file implements the error taxonomy of spec.md §7. Kinds are
// distinguished by Go type, not by a tag field, so callers can
// errors.As onto the specific kind they want to handle.

// ContractViolation is returned when an encoder or rewrite is invoked in
// a way that violates the C2/C3 contracts: mismatched solver session,
// preInputVariables of the wrong arity, a level set missing a required
// threshold. It is fatal to the current invocation.
type ContractViolation struct {
	Stage   string // "encode", "rewrite", "outer solve", "extract"
	Message string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Stage, e.Message)
}

// InfeasibleInput is returned when explicit user equalities contradict
// input bounds or heuristic constraints.
type InfeasibleInput struct {
	ConstraintName string
	Message        string
}

func (e *InfeasibleInput) Error() string {
	return fmt.Sprintf("infeasible input: constraint %q: %s", e.ConstraintName, e.Message)
}

// SolverTimeout is returned when the outer Maximize ran out of
// wall-clock or no-improvement budget and no incumbent exists to return
// instead.
type SolverTimeout struct {
	Stage string
}

func (e *SolverTimeout) Error() string {
	return fmt.Sprintf("solver timeout in %s with no incumbent", e.Stage)
}

// SolverStatusUnsupported is returned when the back end reports a
// status the core does not accept: unbounded, or interrupted without an
// incumbent. Non-fatal: the driver may fall back to a local-search
// baseline on explicit opt-in.
type SolverStatusUnsupported struct {
	Stage  string
	Status Status
}

func (e *SolverStatusUnsupported) Error() string {
	return fmt.Sprintf("solver status unsupported in %s: %s", e.Stage, e.Status)
}

// NumericalInstability is reported, never silently repaired, when
// strong duality holds only beyond tolerance or a quantization selector
// is not within delta of {0,1}.
type NumericalInstability struct {
	Message   string
	Tolerance float64
	Observed  float64
}

func (e *NumericalInstability) Error() string {
	return fmt.Sprintf("numerical instability: %s (tolerance %g, observed %g)", e.Message, e.Tolerance, e.Observed)
}

// Sentinel errors for the MILP branch-and-bound engine, analogous to the
// teacher's INITIAL_RELAXATION_NOT_FEASIBLE / NO_INTEGER_FEASIBLE_SOLUTION.
var (
	ErrInitialRelaxationInfeasible = &InfeasibleInput{Message: "initial LP relaxation is not feasible"}
	ErrNoIntegerFeasibleSolution   = &SolverStatusUnsupported{Stage: "outer solve", Status: StatusInfeasible}
)
