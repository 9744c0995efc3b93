package encoders_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/encoder"
	"github.com/microsoft/MetaOpt-sub005/encoders"
	"github.com/microsoft/MetaOpt-sub005/solver"
	"github.com/microsoft/MetaOpt-sub005/solver/milp"
)

func TestFFD_IsFeasibilityOnly(t *testing.T) {
	e := encoders.NewFFD()
	assert.True(t, e.Feasibility())
}

func TestFFD_FirstFitPacksItemTwoIntoFirstBin(t *testing.T) {
	bins := fixedBins{numBins: 3, dims: 1, capacity: 8, maxCapacity: 8}

	backend := milp.NewBackend(nil)
	s := solver.NewSession(backend, nil)
	e := encoders.NewFFD()

	// item0=6, item1=3, item2=2: first-fit packs item0 into bin0 (2
	// remaining), item1 doesn't fit bin0 so goes to bin1, item2 fits the
	// 2 units left in bin0 and stays there.
	eq := encoder.InputEqualities{0: {6}, 1: {3}, 2: {2}}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, eq, encoders.FFDOptions{Bins: bins, NumItems: 3, Variant: encoders.FF})
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), enc.InnerMaxObjective, solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	sol, err := e.ExtractSolution(res)
	require.NoError(t, err)
	assert.InDelta(t, -2.0, sol.GlobalObjective, 1e-6)
}

func TestFFD_RejectsWeightsPinnedOutOfOrder(t *testing.T) {
	bins := fixedBins{numBins: 2, dims: 1, capacity: 8, maxCapacity: 8}

	backend := milp.NewBackend(nil)
	s := solver.NewSession(backend, nil)
	e := encoders.NewFFD()

	// item0=2, item1=6: the decreasing-weight ordering constraint
	// requires weight[0] >= weight[1], which these pinned sizes violate.
	eq := encoder.InputEqualities{0: {2}, 1: {6}}
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, eq, encoders.FFDOptions{Bins: bins, NumItems: 2, Variant: encoders.FFDSum})
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), enc.InnerMaxObjective, solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	assert.Equal(t, solver.StatusInfeasible, res.Status)
}

func TestFFD_FreeSizesAreAlwaysReturnedInDecreasingOrder(t *testing.T) {
	bins := fixedBins{numBins: 3, dims: 1, capacity: 8, maxCapacity: 8}

	backend := milp.NewBackend(nil)
	s := solver.NewSession(backend, nil)
	e := encoders.NewFFD()

	// sizes are left completely free (the adversarial input the outer
	// search controls); only the monotonicity constraint bounds their
	// relative order.
	enc, err := e.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{}, encoders.FFDOptions{Bins: bins, NumItems: 3, Variant: encoders.FFDSum})
	require.NoError(t, err)

	res, err := s.Maximize(context.Background(), enc.InnerMaxObjective, solver.MaximizeOptions{Reset: true})
	require.NoError(t, err)
	require.True(t, res.Status.HasIncumbent())

	sol, err := e.ExtractSolution(res)
	require.NoError(t, err)
	for i := 0; i < len(sol.Inputs)-1; i++ {
		assert.GreaterOrEqual(t, sol.Inputs[i][0]+1e-6, sol.Inputs[i+1][0])
	}
}

func TestFFD_ProdVariantRequiresTwoDimensions(t *testing.T) {
	bins := fixedBins{numBins: 2, dims: 1, capacity: 8, maxCapacity: 8}
	backend := milp.NewBackend(nil)
	s := solver.NewSession(backend, nil)
	e := encoders.NewFFD()

	assert.Panics(t, func() {
		_, _ = e.Encode(context.Background(), s, encoder.PreInputVariables{}, encoder.InputEqualities{}, encoders.FFDOptions{Bins: bins, NumItems: 2, Variant: encoders.FFDProd})
	})
}
