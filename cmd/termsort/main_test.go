package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/termsort/term"
	"github.com/hupe1980/termsort/testutil"
)

const input = `# comment
3 : 1
1 2 : 1/2

2 : 2
1 2 : 1/3
3 : -1
`

func runCLI(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"-tmp", t.TempDir()}, args...)
	err := run(context.Background(), args, strings.NewReader(in), &out, &errOut)
	return out.String(), err
}

func TestRun(t *testing.T) {
	out, err := runCLI(t, input)
	require.NoError(t, err)
	assert.Equal(t, "1 2 : +5/6\n2 : +2\n", out)

	out, err = runCLI(t, input, "-order", "desc", "-compression", "zstd")
	require.NoError(t, err)
	assert.Equal(t, "2 : +2\n1 2 : +5/6\n", out)

	out, err = runCLI(t, input, "-workers", "2")
	require.NoError(t, err)
	assert.Equal(t, "1 2 : +5/6\n2 : +2\n", out)
}

func TestRun_Errors(t *testing.T) {
	_, err := runCLI(t, "1 : x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	_, err = runCLI(t, input, "-order", "sideways")
	require.Error(t, err)

	_, err = runCLI(t, input, "-kind", "other")
	require.Error(t, err)

	_, err = runCLI(t, input, "-resume")
	require.Error(t, err)
}

func TestRun_Files(t *testing.T) {
	dir := t.TempDir()
	rng := testutil.NewRNG(3)
	terms := rng.Terms(2000, testutil.TermShape{Keys: 40, KeyLen: 2, MaxCoef: 9, Rational: true})

	var sb strings.Builder
	for _, tm := range terms {
		sb.WriteString(tm.String())
		sb.WriteByte('\n')
	}
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte(sb.String()), 0o600))

	_, err := runCLI(t, "", "-in", in, "-out", out, "-kind", "function", "-compression", "lz4")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	got := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(got) == 1 && got[0] == "" {
		got = nil
	}
	assert.Equal(t, testutil.Strings(testutil.Reference(term.Ascending{}, terms)), got)
}

func TestRun_CheckpointResume(t *testing.T) {
	cp := t.TempDir()

	out, err := runCLI(t, "1 : 1\n2 : 1\n", "-checkpoint", cp)
	require.NoError(t, err)
	assert.Equal(t, "1 : +1\n2 : +1\n", out)

	out, err = runCLI(t, "2 : 1\n", "-checkpoint", cp, "-resume")
	require.NoError(t, err)
	assert.Equal(t, "1 : +1\n2 : +2\n", out)
}
