package meshbake

import (
	"testing"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/pkg/errors"
)

func raw(pos, uv int) RawIndices {
	r := NewRawIndices()
	r[AttrPosition] = pos
	r[AttrUV0] = uv
	return r
}

func newTestUnifier(flipV bool) (*Unifier, Binding) {
	ss := NewStreamSet()
	pos := ss.Add(positionStream(
		vec3.T{0, 0, 0},
		vec3.T{1, 0, 0},
		vec3.T{0, 0, 0},
		vec3.T{float32(negZero()), 0, 0},
	))
	uv := ss.Add(uvStream(vec2.T{0, 0}, vec2.T{0.5, 0.25}))
	b := NewBinding()
	b[AttrPosition] = pos
	b[AttrUV0] = uv
	return NewUnifier(ss, flipV), b
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestUnifyIdempotent(t *testing.T) {
	u, b := newTestUnifier(false)
	prim := u.AddPrimitive(b)

	first, err := u.Unify(prim, raw(1, 1))
	if err != nil {
		t.Fatalf("Unify() error = %v", err)
	}
	second, err := u.Unify(prim, raw(1, 1))
	if err != nil {
		t.Fatalf("Unify() error = %v", err)
	}
	if first != second {
		t.Errorf("Unify() = %d then %d, want the same index", first, second)
	}
	if u.Len() != 1 {
		t.Errorf("Len() = %d, want 1", u.Len())
	}
}

func TestUnifyMergesEqualValues(t *testing.T) {
	tests := []struct {
		name string
		a, b RawIndices
		same bool
	}{
		{"SameValueDifferentRaw", raw(0, 0), raw(2, 0), true},
		{"NegativeZero", raw(0, 0), raw(3, 0), true},
		{"DifferentPosition", raw(0, 0), raw(1, 0), false},
		{"DifferentUV", raw(0, 0), raw(0, 1), false},
		{"MissingUV", raw(0, 0), raw(0, NoIndex), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, b := newTestUnifier(false)
			prim := u.AddPrimitive(b)
			i, err := u.Unify(prim, tt.a)
			if err != nil {
				t.Fatalf("Unify(a) error = %v", err)
			}
			j, err := u.Unify(prim, tt.b)
			if err != nil {
				t.Fatalf("Unify(b) error = %v", err)
			}
			if (i == j) != tt.same {
				t.Errorf("Unify() = %d, %d, same = %v, want %v", i, j, i == j, tt.same)
			}
		})
	}
}

func TestUnifyStreamSetGroups(t *testing.T) {
	u, b := newTestUnifier(false)
	shared1 := u.AddPrimitive(b)
	shared2 := u.AddPrimitive(b)

	other := b
	other[AttrPosition] = u.streams.Add(positionStream(vec3.T{0, 0, 0}))
	separate := u.AddPrimitive(other)

	i, _ := u.Unify(shared1, raw(0, 0))
	j, _ := u.Unify(shared2, raw(0, 0))
	k, _ := u.Unify(separate, raw(0, 0))

	if i != j {
		t.Errorf("primitives binding the same streams got %d and %d, want shared", i, j)
	}
	if i == k {
		t.Errorf("primitives binding different streams share index %d", i)
	}
}

func TestResolveSentinels(t *testing.T) {
	u, b := newTestUnifier(false)
	prim := u.AddPrimitive(b)

	tp, err := u.Resolve(prim, raw(1, NoIndex))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !tp.Has(AttrPosition) || tp.Has(AttrUV0) || tp.Has(AttrNormal) {
		t.Errorf("Present = %05b, want position only", tp.Present)
	}
	if tp.Normal != sentinelVec3 || tp.UV0 != sentinelVec2 || tp.Color != sentinelColor {
		t.Errorf("absent attributes = %v %v %v, want sentinels", tp.Normal, tp.UV0, tp.Color)
	}
	if tp.SourceVertex() != 1 {
		t.Errorf("SourceVertex() = %d, want 1", tp.SourceVertex())
	}
}

func TestResolveFlipV(t *testing.T) {
	u, b := newTestUnifier(true)
	prim := u.AddPrimitive(b)

	tp, err := u.Resolve(prim, raw(0, 1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tp.UV0 != (vec2.T{0.5, 0.75}) {
		t.Errorf("UV0 = %v, want [0.5 0.75]", tp.UV0)
	}
}

func TestResolveErrors(t *testing.T) {
	u, b := newTestUnifier(false)
	prim := u.AddPrimitive(b)

	if _, err := u.Unify(prim+1, raw(0, 0)); errors.Cause(err) != ErrUnknownPrimitive {
		t.Errorf("Unify(unknown primitive) error = %v, want %v", err, ErrUnknownPrimitive)
	}
	if _, err := u.Unify(prim, raw(9, 0)); errors.Cause(err) != ErrIndexOutOfRange {
		t.Errorf("Unify(out of range) error = %v, want %v", err, ErrIndexOutOfRange)
	}
	if u.Len() != 0 {
		t.Errorf("Len() = %d after failed unify, want 0", u.Len())
	}
}

func TestUnifierResetAndPad(t *testing.T) {
	u, b := newTestUnifier(false)
	prim := u.AddPrimitive(b)

	first, _ := u.Unify(prim, raw(0, 0))
	u.Pad(4)
	if u.Len() != 4 {
		t.Fatalf("Len() after Pad(4) = %d, want 4", u.Len())
	}
	if u.Vertices[3].Position != u.Vertices[first].Position {
		t.Errorf("padded tuple = %v, want copy of %v", u.Vertices[3].Position, u.Vertices[first].Position)
	}

	again, _ := u.Unify(prim, raw(0, 0))
	if again != first {
		t.Errorf("Unify() before Reset = %d, want %d", again, first)
	}
	u.Reset()
	fresh, _ := u.Unify(prim, raw(0, 0))
	if fresh != 4 {
		t.Errorf("Unify() after Reset = %d, want 4", fresh)
	}
}
