package meshbake

import (
	"github.com/pkg/errors"
)

// Input 多边形集合的一个输入, Offset 为其在每组索引中的位置
type Input struct {
	Attribute Attribute
	Stream    StreamID
	Offset    int
}

// PolygonSet 外部文档中的一组多边形
type PolygonSet struct {
	Encoding Encoding
	Material string
	Inputs   []Input
	// Indices 每个元素是一个 <p>: 三角形列表整体、一条带、一个扇或一个多边形
	Indices [][]int
	// VertexCounts 仅 polylist 使用, 为空时 Indices 的每个元素视为一个多边形
	VertexCounts []int
}

// Stride 每个顶点占用的索引数
func (ps *PolygonSet) Stride() int {
	stride := 0
	for _, in := range ps.Inputs {
		if in.Offset+1 > stride {
			stride = in.Offset + 1
		}
	}
	return stride
}

func (ps *PolygonSet) binding() Binding {
	b := NewBinding()
	for _, in := range ps.Inputs {
		if in.Attribute >= 0 && in.Attribute < AttributeCount {
			b[in.Attribute] = in.Stream
		}
	}
	return b
}

type encodingHandler struct {
	runs func(ps *PolygonSet, stride int) ([][]int, error)
	tris func(n int, emit func(a, b, c int) error) error
}

var encodings = map[Encoding]encodingHandler{
	EncodingTriangles: {runs: triangleRuns, tris: listTriangles},
	EncodingTriStrips: {runs: vertexRuns, tris: stripTriangles},
	EncodingTriFans:   {runs: vertexRuns, tris: fanTriangles},
	EncodingPolyList:  {runs: polygonRuns, tris: fanTriangles},
}

func triangleRuns(ps *PolygonSet, stride int) ([][]int, error) {
	for i, p := range ps.Indices {
		if len(p)%(3*stride) != 0 {
			return nil, errors.Wrapf(ErrStrideMismatch, "triangle list %d has %d indices, stride %d", i, len(p), stride)
		}
	}
	return ps.Indices, nil
}

func vertexRuns(ps *PolygonSet, stride int) ([][]int, error) {
	for i, p := range ps.Indices {
		if len(p)%stride != 0 {
			return nil, errors.Wrapf(ErrStrideMismatch, "run %d has %d indices, stride %d", i, len(p), stride)
		}
	}
	return ps.Indices, nil
}

func polygonRuns(ps *PolygonSet, stride int) ([][]int, error) {
	if ps.VertexCounts == nil {
		return vertexRuns(ps, stride)
	}
	var flat []int
	for _, p := range ps.Indices {
		flat = append(flat, p...)
	}
	total := 0
	for _, vc := range ps.VertexCounts {
		if vc < 0 {
			return nil, errors.Wrapf(ErrStrideMismatch, "negative vertex count %d", vc)
		}
		total += vc
	}
	if total*stride != len(flat) {
		return nil, errors.Wrapf(ErrStrideMismatch, "polylist expects %d indices, got %d", total*stride, len(flat))
	}
	runs := make([][]int, 0, len(ps.VertexCounts))
	off := 0
	for _, vc := range ps.VertexCounts {
		runs = append(runs, flat[off:off+vc*stride])
		off += vc * stride
	}
	return runs, nil
}

func listTriangles(n int, emit func(a, b, c int) error) error {
	for i := 0; i+2 < n; i += 3 {
		if err := emit(i, i+1, i+2); err != nil {
			return err
		}
	}
	return nil
}

// stripTriangles 奇数三角形交换后两个顶点以保持朝向一致
func stripTriangles(n int, emit func(a, b, c int) error) error {
	for i := 0; i+2 < n; i++ {
		var err error
		if i%2 == 0 {
			err = emit(i, i+1, i+2)
		} else {
			err = emit(i, i+2, i+1)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// fanTriangles 以第一个顶点为中心的扇形剖分, 凹多边形结果不正确
func fanTriangles(n int, emit func(a, b, c int) error) error {
	for i := 0; i+2 < n; i++ {
		if err := emit(0, i+1, i+2); err != nil {
			return err
		}
	}
	return nil
}

// Triangulator 把多边形集合转换为统一顶点上的三角形索引
type Triangulator struct {
	unifier  *Unifier
	mirrored bool
	split    bool
	page     int

	Indices    []uint32
	Primitives []*Primitive
	Split      bool

	current *Primitive
}

func NewTriangulator(u *Unifier, mirrored, split bool) *Triangulator {
	return &Triangulator{unifier: u, mirrored: mirrored, split: split}
}

// decode 校验整个图元并把索引展开为每顶点的原始索引
func (t *Triangulator) decode(ps *PolygonSet, runs [][]int, stride int) ([][]RawIndices, error) {
	hasPosition := false
	for _, in := range ps.Inputs {
		if in.Attribute == AttrPosition && t.unifier.streams.Get(in.Stream) != nil {
			hasPosition = true
		}
	}
	if !hasPosition {
		return nil, ErrMissingPosition
	}
	out := make([][]RawIndices, len(runs))
	for r, run := range runs {
		n := len(run) / stride
		verts := make([]RawIndices, n)
		for k := 0; k < n; k++ {
			raw := NewRawIndices()
			for _, in := range ps.Inputs {
				if in.Attribute < 0 || in.Attribute >= AttributeCount {
					continue
				}
				s := t.unifier.streams.Get(in.Stream)
				if s == nil {
					continue
				}
				idx := run[k*stride+in.Offset]
				if idx < 0 || idx >= s.Count() {
					return nil, errors.Wrapf(ErrIndexOutOfRange, "%s index %d (count %d)", in.Attribute, idx, s.Count())
				}
				raw[in.Attribute] = idx
			}
			verts[k] = raw
		}
		out[r] = verts
	}
	return out, nil
}

// Triangulate 处理一个多边形集合. 出错时不会输出该集合的任何三角形.
func (t *Triangulator) Triangulate(ps *PolygonSet, material int32) error {
	h, ok := encodings[ps.Encoding]
	if !ok {
		return errors.Wrapf(ErrUnknownEncoding, "encoding %d", ps.Encoding)
	}
	stride := ps.Stride()
	if stride == 0 {
		return ErrMissingPosition
	}
	runs, err := h.runs(ps, stride)
	if err != nil {
		return err
	}
	polys, err := t.decode(ps, runs, stride)
	if err != nil {
		return err
	}

	prim := t.unifier.AddPrimitive(ps.binding())
	start := len(t.Indices)
	nprims := len(t.Primitives)
	t.open(material)
	for _, verts := range polys {
		err = h.tris(len(verts), func(a, b, c int) error {
			return t.triangle(prim, &verts[a], &verts[b], &verts[c])
		})
		if err != nil {
			t.Indices = t.Indices[:start]
			t.Primitives = t.Primitives[:nprims]
			t.current = nil
			return err
		}
	}
	t.close()
	return nil
}

func (t *Triangulator) open(material int32) {
	t.current = &Primitive{Start: uint32(len(t.Indices)), MaterialIndex: material}
}

func (t *Triangulator) close() {
	if t.current == nil {
		return
	}
	t.current.Count = uint32(len(t.Indices)) - t.current.Start
	if t.current.Count > 0 {
		t.Primitives = append(t.Primitives, t.current)
	}
	t.current = nil
}

// nextPage 填充到页边界并开始新的图元, 新图元不会引用前一页的顶点
func (t *Triangulator) nextPage() {
	pageEnd := (t.page + 1) * PAGE_SIZE
	t.unifier.Pad(pageEnd)
	material := t.current.MaterialIndex
	t.close()
	t.open(material)
	t.unifier.Reset()
	t.page++
	t.Split = true
}

func (t *Triangulator) triangle(prim int, v0, v1, v2 *RawIndices) error {
	if t.split && t.unifier.Len()+3 > (t.page+1)*PAGE_SIZE {
		t.nextPage()
	}
	var idx [3]uint32
	for i, v := range [3]*RawIndices{v0, v1, v2} {
		n, err := t.unifier.Unify(prim, *v)
		if err != nil {
			return err
		}
		idx[i] = uint32(n)
	}
	if t.mirrored {
		t.Indices = append(t.Indices, idx[0], idx[1], idx[2])
	} else {
		t.Indices = append(t.Indices, idx[2], idx[1], idx[0])
	}
	return nil
}
