// Package testutil provides testing utilities for termsort.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded term generators and a map based reference merge that
// serves as ground truth.
//
// # Random Terms
//
//	rng := testutil.NewRNG(seed)
//	terms := rng.Terms(10_000, testutil.TermShape{Keys: 500, KeyLen: 3})
//
// # Ground Truth
//
//	want := testutil.Reference(term.Ascending{}, terms)
//	assert.Equal(t, testutil.Strings(want), testutil.Strings(got))
package testutil
