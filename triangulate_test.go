package meshbake

import (
	"reflect"
	"testing"

	"github.com/flywave/go3d/vec3"
	"github.com/pkg/errors"
)

// lineStream n 个互不相同的位置
func lineStream(n int) *Stream {
	pts := make([]vec3.T, n)
	for i := range pts {
		pts[i] = vec3.T{float32(i), 0, 0}
	}
	return positionStream(pts...)
}

func positionSet(enc Encoding, id StreamID, indices ...[]int) *PolygonSet {
	return &PolygonSet{
		Encoding: enc,
		Inputs:   []Input{{Attribute: AttrPosition, Stream: id, Offset: 0}},
		Indices:  indices,
	}
}

func newTestTriangulator(n int, mirrored, split bool) (*Triangulator, StreamID) {
	ss := NewStreamSet()
	id := ss.Add(lineStream(n))
	return NewTriangulator(NewUnifier(ss, false), mirrored, split), id
}

func TestTriangulateEncodings(t *testing.T) {
	tests := []struct {
		name     string
		set      func(id StreamID) *PolygonSet
		mirrored bool
		want     []uint32
	}{
		{
			"Triangles",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriangles, id, []int{0, 1, 2, 2, 1, 3}) },
			false,
			[]uint32{2, 1, 0, 3, 1, 2},
		},
		{
			"TrianglesMirrored",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriangles, id, []int{0, 1, 2}) },
			true,
			[]uint32{0, 1, 2},
		},
		{
			"StripParity",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriStrips, id, []int{0, 1, 2, 3}) },
			false,
			[]uint32{2, 1, 0, 2, 3, 1},
		},
		{
			"StripParityMirrored",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriStrips, id, []int{0, 1, 2, 3}) },
			true,
			[]uint32{0, 1, 2, 1, 3, 2},
		},
		{
			"Fan",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriFans, id, []int{0, 1, 2, 3, 4}) },
			false,
			[]uint32{2, 1, 0, 3, 2, 0, 4, 3, 0},
		},
		{
			"Polygons",
			func(id StreamID) *PolygonSet {
				return positionSet(EncodingPolyList, id, []int{0, 1, 2, 3}, []int{4, 3, 2})
			},
			false,
			[]uint32{2, 1, 0, 3, 2, 0, 2, 3, 4},
		},
		{
			"PolyList",
			func(id StreamID) *PolygonSet {
				ps := positionSet(EncodingPolyList, id, []int{0, 1, 2, 0, 2, 3, 4})
				ps.VertexCounts = []int{3, 4}
				return ps
			},
			false,
			[]uint32{2, 1, 0, 3, 2, 0, 4, 3, 0},
		},
		{
			"DegenerateStrip",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriStrips, id, []int{0, 1}) },
			false,
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tri, id := newTestTriangulator(5, tt.mirrored, true)
			if err := tri.Triangulate(tt.set(id), 0); err != nil {
				t.Fatalf("Triangulate() error = %v", err)
			}
			if !reflect.DeepEqual(tri.Indices, tt.want) {
				t.Errorf("Indices = %v, want %v", tri.Indices, tt.want)
			}
		})
	}
}

func TestTriangulateTriangleCounts(t *testing.T) {
	tests := []struct {
		name string
		enc  Encoding
		n    int
		want int
	}{
		{"Strip", EncodingTriStrips, 5, 3},
		{"Fan", EncodingTriFans, 5, 3},
		{"Polygon", EncodingPolyList, 6, 4},
		{"List", EncodingTriangles, 6, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tri, id := newTestTriangulator(tt.n, false, true)
			idx := make([]int, tt.n)
			for i := range idx {
				idx[i] = i
			}
			if err := tri.Triangulate(positionSet(tt.enc, id, idx), 0); err != nil {
				t.Fatalf("Triangulate() error = %v", err)
			}
			if got := len(tri.Indices) / 3; got != tt.want {
				t.Errorf("triangles = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTriangulateRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		set  func(id StreamID) *PolygonSet
		want error
	}{
		{
			"PolyListCountMismatch",
			func(id StreamID) *PolygonSet {
				ps := positionSet(EncodingPolyList, id, []int{0, 1, 2, 3, 4})
				ps.VertexCounts = []int{3, 3}
				return ps
			},
			ErrStrideMismatch,
		},
		{
			"PartialTriangle",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriangles, id, []int{0, 1, 2, 3}) },
			ErrStrideMismatch,
		},
		{
			"IndexOutOfRange",
			func(id StreamID) *PolygonSet { return positionSet(EncodingTriangles, id, []int{0, 1, 2, 0, 1, 9}) },
			ErrIndexOutOfRange,
		},
		{
			"NoPosition",
			func(id StreamID) *PolygonSet {
				ps := positionSet(EncodingTriangles, id, []int{0, 1, 2})
				ps.Inputs[0].Attribute = AttrNormal
				return ps
			},
			ErrMissingPosition,
		},
		{
			"UnknownEncoding",
			func(id StreamID) *PolygonSet { return positionSet(Encoding(42), id, []int{0, 1, 2}) },
			ErrUnknownEncoding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tri, id := newTestTriangulator(5, false, true)
			if err := tri.Triangulate(positionSet(EncodingTriangles, id, []int{0, 1, 2}), 3); err != nil {
				t.Fatalf("Triangulate(valid) error = %v", err)
			}

			err := tri.Triangulate(tt.set(id), 4)
			if errors.Cause(err) != tt.want {
				t.Fatalf("Triangulate() error = %v, want %v", err, tt.want)
			}
			if len(tri.Indices) != 3 || len(tri.Primitives) != 1 {
				t.Errorf("after rejection: %d indices, %d primitives, want 3 and 1", len(tri.Indices), len(tri.Primitives))
			}
			if tri.unifier.Len() != 3 {
				t.Errorf("unified vertices = %d, want 3", tri.unifier.Len())
			}
		})
	}
}

func TestTriangulatePrimitiveMaterials(t *testing.T) {
	tri, id := newTestTriangulator(5, false, true)
	if err := tri.Triangulate(positionSet(EncodingTriangles, id, []int{0, 1, 2}), 7); err != nil {
		t.Fatal(err)
	}
	if err := tri.Triangulate(positionSet(EncodingTriFans, id, []int{0, 2, 3, 4}), -1); err != nil {
		t.Fatal(err)
	}
	want := []Primitive{
		{Start: 0, Count: 3, MaterialIndex: 7},
		{Start: 3, Count: 6, MaterialIndex: -1},
	}
	if len(tri.Primitives) != len(want) {
		t.Fatalf("len(Primitives) = %d, want %d", len(tri.Primitives), len(want))
	}
	for i, p := range tri.Primitives {
		if *p != want[i] {
			t.Errorf("Primitives[%d] = %+v, want %+v", i, *p, want[i])
		}
	}
}

func TestTriangulateSplitsAt16Bit(t *testing.T) {
	const tris = PAGE_SIZE/3 + 1
	n := tris * 3

	tri, id := newTestTriangulator(n, false, true)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if err := tri.Triangulate(positionSet(EncodingTriangles, id, idx), 2); err != nil {
		t.Fatalf("Triangulate() error = %v", err)
	}

	if !tri.Split {
		t.Fatal("Split = false, want true")
	}
	if len(tri.Primitives) != 2 {
		t.Fatalf("len(Primitives) = %d, want 2", len(tri.Primitives))
	}
	if got := tri.unifier.Len(); got != PAGE_SIZE+3 {
		t.Errorf("unified vertices = %d, want %d", got, PAGE_SIZE+3)
	}
	for page, p := range tri.Primitives {
		if p.MaterialIndex != 2 {
			t.Errorf("Primitives[%d].MaterialIndex = %d, want 2", page, p.MaterialIndex)
		}
		lo, hi := uint32(page*PAGE_SIZE), uint32((page+1)*PAGE_SIZE)
		for _, v := range tri.Indices[p.Start : p.Start+p.Count] {
			if v < lo || v >= hi {
				t.Fatalf("primitive %d references vertex %d outside [%d, %d)", page, v, lo, hi)
			}
		}
	}
	if got := tri.Primitives[1].Count; got != 3 {
		t.Errorf("second page indices = %d, want 3", got)
	}
}

func TestTriangulateNoSplit(t *testing.T) {
	const tris = PAGE_SIZE/3 + 1
	n := tris * 3

	tri, id := newTestTriangulator(n, false, false)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if err := tri.Triangulate(positionSet(EncodingTriangles, id, idx), 0); err != nil {
		t.Fatalf("Triangulate() error = %v", err)
	}
	if tri.Split || len(tri.Primitives) != 1 {
		t.Errorf("Split = %v, primitives = %d, want false and 1", tri.Split, len(tri.Primitives))
	}
	if got := tri.unifier.Len(); got != n {
		t.Errorf("unified vertices = %d, want %d", got, n)
	}
}
