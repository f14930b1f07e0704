// Package fspath implements the immutable hierarchical path value used
// throughout the naming server: an ordered sequence of components with
// a canonical string form and a total order compatible with the tree's
// path-locking protocol.
package fspath

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalid is returned when a path string cannot be parsed: an empty
// component, or a component containing '/' or ':'.
var ErrInvalid = errors.New("invalid path")

// Root is the canonical string form of the distinguished root path.
const Root = "/"

// Path is an ordered, non-empty-component sequence rooted at the
// filesystem root. The zero value is the root path. Path is immutable:
// every method that would change it returns a new value.
type Path struct {
	components []string
}

// Parse parses a canonical path string such as "/a/b/c" or "/" into a
// Path. Leading and trailing slashes are tolerated; consecutive slashes
// and empty components are rejected so the round trip to String is
// exact for any string this function accepts.
func Parse(s string) (Path, error) {
	if s == "" {
		return Path{}, errors.Wrapf(ErrInvalid, "empty path")
	}
	if s[0] != '/' {
		return Path{}, errors.Wrapf(ErrInvalid, "%q: must be absolute", s)
	}
	if s == Root {
		return Path{}, nil
	}
	parts := strings.Split(s[1:], "/")
	components := make([]string, 0, len(parts))
	for _, c := range parts {
		if err := validateComponent(c); err != nil {
			return Path{}, errors.Wrapf(err, "%q", s)
		}
		components = append(components, c)
	}
	return Path{components: components}, nil
}

// MustParse is like Parse but panics on error. Intended for constants
// and tests, never for input coming from a client.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// New builds a Path directly from components, each of which must be
// non-empty and free of '/' and ':'.
func New(components ...string) (Path, error) {
	out := make([]string, len(components))
	for i, c := range components {
		if err := validateComponent(c); err != nil {
			return Path{}, err
		}
		out[i] = c
	}
	return Path{components: out}, nil
}

func validateComponent(c string) error {
	if c == "" {
		return errors.Wrap(ErrInvalid, "empty component")
	}
	if strings.ContainsAny(c, "/:") {
		return errors.Wrapf(ErrInvalid, "component %q contains '/' or ':'", c)
	}
	return nil
}

// IsRoot reports whether p is the distinguished root.
func (p Path) IsRoot() bool {
	return len(p.components) == 0
}

// Components returns the path's components in order. The returned slice
// must not be mutated by the caller.
func (p Path) Components() []string {
	return p.components
}

// Last returns the final component. Calling it on the root path panics:
// callers must check IsRoot first.
func (p Path) Last() string {
	if p.IsRoot() {
		panic("fspath: Last called on root path")
	}
	return p.components[len(p.components)-1]
}

// Parent returns the path one level up. Calling it on the root path
// panics: callers must check IsRoot first.
func (p Path) Parent() Path {
	if p.IsRoot() {
		panic("fspath: Parent called on root path")
	}
	return Path{components: p.components[:len(p.components)-1]}
}

// Join returns the path obtained by appending name as a new final
// component.
func (p Path) Join(name string) (Path, error) {
	if err := validateComponent(name); err != nil {
		return Path{}, err
	}
	out := make([]string, len(p.components)+1)
	copy(out, p.components)
	out[len(p.components)] = name
	return Path{components: out}, nil
}

// String returns the canonical form: "/" for the root, "/a/b/c"
// otherwise.
func (p Path) String() string {
	if p.IsRoot() {
		return Root
	}
	return Root + strings.Join(p.components, "/")
}

// Equal reports whether p and other name the same path.
func (p Path) Equal(other Path) bool {
	if len(p.components) != len(other.components) {
		return false
	}
	for i, c := range p.components {
		if c != other.components[i] {
			return false
		}
	}
	return true
}

// IsSubpath reports whether other is a prefix of p, including equality:
// true when p lies in the subtree rooted at other. Every path is a
// subpath of itself, and every path has the root as a prefix.
func (p Path) IsSubpath(other Path) bool {
	if len(other.components) > len(p.components) {
		return false
	}
	for i, c := range other.components {
		if c != p.components[i] {
			return false
		}
	}
	return true
}

// Less implements the canonical total order over paths: lexicographic,
// component by component, with a shorter path preceding a longer path
// that extends it. The tree's lock protocol requires callers holding
// more than one path to acquire them in this order.
func (p Path) Less(other Path) bool {
	n := len(p.components)
	if len(other.components) < n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		if p.components[i] != other.components[i] {
			return p.components[i] < other.components[i]
		}
	}
	return len(p.components) < len(other.components)
}

// Sortable adapts a []Path to sort.Interface using Less.
type Sortable []Path

func (s Sortable) Len() int           { return len(s) }
func (s Sortable) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s Sortable) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
