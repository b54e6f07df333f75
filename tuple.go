package meshbake

import (
	"math"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// NoIndex 表示某属性没有原始索引
const NoIndex = -1

var (
	sentinelVec3  = vec3.T{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	sentinelVec2  = vec2.T{math.MaxFloat32, math.MaxFloat32}
	sentinelColor = [4]uint8{0, 0, 0, 0}
)

// RawIndices 每种属性一个原始索引
type RawIndices [AttributeCount]int

// NewRawIndices 返回全部缺失的原始索引
func NewRawIndices() RawIndices {
	var r RawIndices
	for i := range r {
		r[i] = NoIndex
	}
	return r
}

// Binding 图元的属性到流的绑定, NoStream 表示缺失
type Binding [AttributeCount]StreamID

func NewBinding() Binding {
	var b Binding
	for i := range b {
		b[i] = NoStream
	}
	return b
}

// VertexTuple 顶点元组, 相等性只看解析后的值
type VertexTuple struct {
	Primitive int
	Raw       RawIndices
	Position  vec3.T
	Normal    vec3.T
	Color     [4]uint8
	UV0       vec2.T
	UV1       vec2.T
	Present   uint8
}

func (t *VertexTuple) Has(a Attribute) bool {
	return t.Present&(1<<uint(a)) != 0
}

// SourceVertex 返回元组的源顶点(位置)索引
func (t *VertexTuple) SourceVertex() int {
	return t.Raw[AttrPosition]
}

type tupleKey struct {
	group   int
	present uint8
	pos     [3]uint32
	normal  [3]uint32
	color   [4]uint8
	uv0     [2]uint32
	uv1     [2]uint32
}

func floatBits(f float32) uint32 {
	if f == 0 {
		return 0
	}
	return math.Float32bits(f)
}

func vec3Bits(v vec3.T) [3]uint32 {
	return [3]uint32{floatBits(v[0]), floatBits(v[1]), floatBits(v[2])}
}

func vec2Bits(v vec2.T) [2]uint32 {
	return [2]uint32{floatBits(v[0]), floatBits(v[1])}
}

func (t *VertexTuple) key(group int) tupleKey {
	return tupleKey{
		group:   group,
		present: t.Present,
		pos:     vec3Bits(t.Position),
		normal:  vec3Bits(t.Normal),
		color:   t.Color,
		uv0:     vec2Bits(t.UV0),
		uv1:     vec2Bits(t.UV1),
	}
}
