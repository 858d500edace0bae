package rune_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	rune "github.com/runelang/rune"
)

// goldenScenarios bundles a set of end-to-end source/result pairs in one
// txtar archive: each file's name is the scenario id, its content the
// source text, and a trailing "-- want --" file holds the expected integer
// result for every scenario in order. Bundling them this way keeps the
// sources near their expectations without turning this file into a wall of
// near-identical table entries.
var goldenScenarios = txtar.Parse([]byte(`
-- tail-expression --
pub fn main() { 1 + 2 }
-- for-range-accumulation --
pub fn main() {
	let s = 0;
	for i in 0..5 {
		s = s + i;
	}
	s
}
-- want --
3
10
`))

func TestGoldenScenariosCompileAndReturnTheExpectedResult(t *testing.T) {
	var want []string
	var sources []txtar.File
	for _, f := range goldenScenarios.Files {
		if f.Name == "want" {
			continue
		}
		sources = append(sources, f)
	}
	wantFile := goldenScenarios.Files[len(goldenScenarios.Files)-1]
	require.Equal(t, "want", wantFile.Name, "golden archive must end with a -- want -- file")
	for _, line := range splitNonEmptyLines(string(wantFile.Data)) {
		want = append(want, line)
	}
	require.Len(t, want, len(sources), "one expected result per scenario source")

	for i, f := range sources {
		t.Run(f.Name, func(t *testing.T) {
			u, err := rune.Compile(f.Name, string(f.Data), nil)
			require.NoError(t, err)

			m := rune.NewVm(nil, u)
			result, err := m.Call("main")
			require.NoError(t, err)

			n, ok := result.AsInteger()
			require.True(t, ok)
			assert.Equal(t, want[i], itoa(n))
		})
	}
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
