package fspath

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{"/", "/"},
		{"/a", "/a"},
		{"/a/b/c", "/a/b/c"},
		{"/a/b/c/", "/a/b/c"},
	}
	for _, tc := range testCases {
		p, err := Parse(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, p.String(), tc.input)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "a/b", "/a//b", "/a/", "/a/b:c"} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestComponents(t *testing.T) {
	p := MustParse("/a/b/c")
	assert.Equal(t, []string{"a", "b", "c"}, p.Components())
	assert.Equal(t, "c", p.Last())
	assert.Equal(t, "/a/b", p.Parent().String())
	assert.True(t, p.Parent().Parent().Parent().IsRoot())
}

func TestJoin(t *testing.T) {
	p := MustParse("/a")
	q, err := p.Join("b")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", q.String())
	assert.Equal(t, "/a", p.String(), "Join must not mutate the receiver")
}

func TestRootLastAndParentPanic(t *testing.T) {
	assert.Panics(t, func() { MustParse("/").Last() })
	assert.Panics(t, func() { MustParse("/").Parent() })
}

// property 2: for any valid path string s, parse(s).toString() ==
// canonicalize(s), and iterated components recompose to the original.
func TestRoundTripProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	alphabet := "abcdefghij"
	for i := 0; i < 200; i++ {
		n := rnd.Intn(6)
		var parts []string
		for j := 0; j < n; j++ {
			l := 1 + rnd.Intn(4)
			var b strings.Builder
			for k := 0; k < l; k++ {
				b.WriteByte(alphabet[rnd.Intn(len(alphabet))])
			}
			parts = append(parts, b.String())
		}
		canonical := "/" + strings.Join(parts, "/")
		if len(parts) == 0 {
			canonical = "/"
		}
		p, err := Parse(canonical)
		require.NoError(t, err, canonical)
		assert.Equal(t, canonical, p.String())
		assert.Equal(t, parts, p.Components())
	}
}

// IsSubpath is directional: the argument must be a prefix of the
// receiver, never the other way around.
func TestSubpathDirection(t *testing.T) {
	assert.True(t, MustParse("/a/b/c").IsSubpath(MustParse("/a/b")))
	assert.False(t, MustParse("/a/b").IsSubpath(MustParse("/a/b/c")))
	assert.True(t, MustParse("/a/b").IsSubpath(MustParse("/")))
	assert.False(t, MustParse("/").IsSubpath(MustParse("/a")))
	assert.False(t, MustParse("/a/x").IsSubpath(MustParse("/a/b")))
}

// property 3: p.isSubpath(p) is true; p.isSubpath(q) && q.isSubpath(r)
// implies p.isSubpath(r).
func TestSubpathReflexivityAndTransitivity(t *testing.T) {
	paths := []Path{
		MustParse("/"),
		MustParse("/a"),
		MustParse("/a/b"),
		MustParse("/a/b/c"),
		MustParse("/a/x"),
		MustParse("/z"),
	}
	for _, p := range paths {
		assert.True(t, p.IsSubpath(p), "%s.IsSubpath(%s)", p, p)
	}
	for _, p := range paths {
		for _, q := range paths {
			for _, r := range paths {
				if p.IsSubpath(q) && q.IsSubpath(r) {
					assert.True(t, p.IsSubpath(r), "%s <= %s <= %s", p, q, r)
				}
			}
		}
	}
}

func TestLessTotalOrder(t *testing.T) {
	a := MustParse("/a")
	b := MustParse("/a/b")
	c := MustParse("/b")
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.True(t, a.Less(c))
	assert.False(t, a.Less(a))
}

func TestEqual(t *testing.T) {
	assert.True(t, MustParse("/a/b").Equal(MustParse("/a/b")))
	assert.False(t, MustParse("/a/b").Equal(MustParse("/a/c")))
	assert.True(t, MustParse("/").Equal(Path{}))
}
