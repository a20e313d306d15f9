package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanInlineMath(t *testing.T) {
	s := New(0)
	require.Equal(t, "On topic", s.Clean("On $x^2$ topic"))
	require.Equal(t, "energy of the state", s.Clean(`energy \(E=mc^2\) of the state`))
}

func TestCleanBlockMathAndCite(t *testing.T) {
	s := New(0)
	in := `We show \[ \int f \] holds \cite{smith2020} under mild assumptions.`
	require.Equal(t, "We show holds under mild assumptions.", s.Clean(in))
}

func TestCleanStructuralReferences(t *testing.T) {
	s := New(0)
	cases := map[string]string{
		"As shown in Figure 3 the rate drops.":  "As shown in the rate drops.",
		"see eq. 2.1 and Table 4 for details":   "see and for details",
		"Results in Fig.(2) match Section (5).": "Results in match .",
	}
	for in, want := range cases {
		require.Equal(t, want, s.Clean(in), "input %q", in)
	}
}

func TestCleanLatexCommands(t *testing.T) {
	s := New(0)
	require.Equal(t, "bold and text", s.Clean(`\textbf bold and \emph text`))
}

func TestCleanWhitespaceCollapse(t *testing.T) {
	s := New(0)
	require.Equal(t, "a b c", s.Clean("a\n\n  b\t\tc  "))
	require.Equal(t, "", s.Clean("   \n\t "))
}

func TestCleanTruncates(t *testing.T) {
	s := New(10)
	long := strings.Repeat("a", 50)
	require.Equal(t, strings.Repeat("a", 10), s.Clean(long))

	// Rune-safe: multi-byte characters are never split.
	s2 := New(3)
	got := s2.Clean("ααααα")
	require.Equal(t, "ααα", got)
}

func TestCleanIdempotent(t *testing.T) {
	s := New(0)
	in := `The $\alpha$ decay \cite{x} in Figure 2 shows \textit emphasis.`
	once := s.Clean(in)
	require.Equal(t, once, s.Clean(once))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", Truncate("abc", 5))
	require.Equal(t, "ab", Truncate("abc", 2))
	require.Equal(t, "abc", Truncate("abc", 0))
}
