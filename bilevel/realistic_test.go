package bilevel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/MetaOpt-sub005/bilevel"
)

func TestMaximizeOptimalityGap_RealisticNilIsNoop(t *testing.T) {
	d := newDriver()
	opt := &maxEncoder{}
	heu := &halfEncoder{}

	// No Realistic set: the unconstrained optimum, b pushed to its
	// declared bound of 10.
	opts := bilevel.Options{InnerRewrite: bilevel.RewriteKKT}
	optSol, heuSol, err := d.MaximizeOptimalityGap(context.Background(), opt, heu, nil, nil, opts)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, optSol.GlobalObjective, 1e-6)
	assert.InDelta(t, 5.0, heuSol.GlobalObjective, 1e-6)
}

func TestMaximizeOptimalityGap_RealisticDensityAcceptsASatisfyingInput(t *testing.T) {
	d := newDriver()
	opt := &maxEncoder{}
	heu := &halfEncoder{}

	// A single shared input is always 100% dense whenever it is
	// positive at all, so this must still find the same optimum.
	opts := bilevel.Options{
		GlobalInputUB: 6,
		InnerRewrite:  bilevel.RewriteKKT,
		Realistic:     &bilevel.RealisticOptions{DensityMin: 1.0, LargeDemandThreshold: 1, LargeDemandMinCount: 1},
	}
	optSol, heuSol, err := d.MaximizeOptimalityGap(context.Background(), opt, heu, nil, nil, opts)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, optSol.GlobalObjective, 1e-6)
	assert.InDelta(t, 3.0, heuSol.GlobalObjective, 1e-6)
}
