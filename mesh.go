package meshbake

import (
	"math"

	dvec3 "github.com/flywave/go3d/float64/vec3"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// Mesh 统一顶点、三角形索引的网格
type Mesh struct {
	Name       string        `json:"name"`
	Vertices   []vec3.T      `json:"vertices"`
	Normals    []vec3.T      `json:"normals,omitempty"`
	Colors     [][4]byte     `json:"colors,omitempty"`
	TexCoords  []vec2.T      `json:"texCoords,omitempty"`
	TexCoords2 []vec2.T      `json:"texCoords2,omitempty"`
	Indices    []uint32      `json:"indices"`
	Primitives []*Primitive  `json:"primitives"`
	Materials  []*Material   `json:"materials,omitempty"`
	Tuples     []VertexTuple `json:"-"`
	Split      bool          `json:"split"`
	Skin       *Skin         `json:"skin,omitempty"`
	// Morphs 导出时写为 glTF 变形目标
	Morphs []*MorphTarget `json:"-"`
}

func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// PrimitiveIndices 返回图元对应的索引段
func (m *Mesh) PrimitiveIndices(i int) []uint32 {
	p := m.Primitives[i]
	return m.Indices[p.Start : p.Start+p.Count]
}

// fillArrays 由统一顶点数组生成各属性数组, 部分缺失的属性填默认值
func (m *Mesh) fillArrays() {
	var present uint8
	for i := range m.Tuples {
		present |= m.Tuples[i].Present
	}
	n := len(m.Tuples)
	m.Vertices = make([]vec3.T, n)
	if present&(1<<uint(AttrNormal)) != 0 {
		m.Normals = make([]vec3.T, n)
	}
	if present&(1<<uint(AttrColor)) != 0 {
		m.Colors = make([][4]byte, n)
	}
	if present&(1<<uint(AttrUV0)) != 0 {
		m.TexCoords = make([]vec2.T, n)
	}
	if present&(1<<uint(AttrUV1)) != 0 {
		m.TexCoords2 = make([]vec2.T, n)
	}
	for i := range m.Tuples {
		t := &m.Tuples[i]
		m.Vertices[i] = t.Position
		if m.Normals != nil {
			if t.Has(AttrNormal) {
				m.Normals[i] = t.Normal
			} else {
				m.Normals[i] = vec3.T{0, 0, 1}
			}
		}
		if m.Colors != nil {
			if t.Has(AttrColor) {
				m.Colors[i] = t.Color
			} else {
				m.Colors[i] = [4]byte{255, 255, 255, 255}
			}
		}
		if m.TexCoords != nil && t.Has(AttrUV0) {
			m.TexCoords[i] = t.UV0
		}
		if m.TexCoords2 != nil && t.Has(AttrUV1) {
			m.TexCoords2[i] = t.UV1
		}
	}
}

// recomputeNormals 按面法线累加得到平滑法线, reversed 表示索引顺序与源数据相反
func (m *Mesh) recomputeNormals(reversed bool) {
	normals := make([]vec3.T, len(m.Vertices))
	for f := 0; f+2 < len(m.Indices); f += 3 {
		i0, i1, i2 := m.Indices[f], m.Indices[f+1], m.Indices[f+2]
		pt1 := m.Vertices[i0]
		pt2 := m.Vertices[i1]
		pt3 := m.Vertices[i2]

		sub1 := vec3.Sub(&pt3, &pt2)
		sub2 := vec3.Sub(&pt1, &pt2)

		cro := vec3.Cross(&sub1, &sub2)
		l := cro.Length()
		if l == 0 {
			continue
		}
		if reversed {
			l = -l
		}
		weightedNormal := cro.Scale(1 / l)

		normals[i0].Add(weightedNormal)
		normals[i1].Add(weightedNormal)
		normals[i2].Add(weightedNormal)
	}

	for i := range normals {
		if normals[i].IsZero() {
			normals[i] = vec3.T{0, 0, 1}
			continue
		}
		normals[i].Normalize()
	}

	m.Normals = normals
}

func (m *Mesh) GetBoundbox() *[6]float64 {
	minX := math.MaxFloat64
	minY := math.MaxFloat64
	minZ := math.MaxFloat64
	maxX := -math.MaxFloat64
	maxY := -math.MaxFloat64
	maxZ := -math.MaxFloat64
	for i := range m.Vertices {
		minX = math.Min(minX, float64(m.Vertices[i][0]))
		minY = math.Min(minY, float64(m.Vertices[i][1]))
		minZ = math.Min(minZ, float64(m.Vertices[i][2]))

		maxX = math.Max(maxX, float64(m.Vertices[i][0]))
		maxY = math.Max(maxY, float64(m.Vertices[i][1]))
		maxZ = math.Max(maxZ, float64(m.Vertices[i][2]))
	}
	return &[6]float64{minX, minY, minZ, maxX, maxY, maxZ}
}

func (m *Mesh) ComputeBBox() dvec3.Box {
	if len(m.Vertices) == 0 {
		return dvec3.Box{}
	}
	bx := m.GetBoundbox()
	return dvec3.Box{
		Min: dvec3.T{bx[0], bx[1], bx[2]},
		Max: dvec3.T{bx[3], bx[4], bx[5]},
	}
}
