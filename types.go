package meshbake

const (
	// PAGE_SIZE 16位索引空间的页大小
	PAGE_SIZE = 0x10000
	// DEFAULT_MAX_BONES 每个顶点默认最多保留的骨骼影响数
	DEFAULT_MAX_BONES = 4
)

// Attribute 顶点属性类型
type Attribute int

const (
	AttrPosition Attribute = iota
	AttrNormal
	AttrColor
	AttrUV0
	AttrUV1
	AttributeCount
)

var attributeNames = [AttributeCount]string{"POSITION", "NORMAL", "COLOR", "TEXCOORD_0", "TEXCOORD_1"}

func (a Attribute) String() string {
	if a < 0 || a >= AttributeCount {
		return "UNKNOWN"
	}
	return attributeNames[a]
}

// Encoding 多边形编码类型
type Encoding int

const (
	EncodingTriangles Encoding = iota
	EncodingTriStrips
	EncodingTriFans
	EncodingPolyList
)

func (e Encoding) String() string {
	switch e {
	case EncodingTriangles:
		return "triangles"
	case EncodingTriStrips:
		return "tristrips"
	case EncodingTriFans:
		return "trifans"
	case EncodingPolyList:
		return "polylist"
	}
	return "unknown"
}

// MorphMode 变形目标混合方式
type MorphMode int

const (
	MorphAdditive MorphMode = iota
	MorphNormalized
)

func (m MorphMode) String() string {
	if m == MorphNormalized {
		return "normalized"
	}
	return "additive"
}

// ParseMorphMode 解析配置中的混合方式, 未识别时回退到 additive
func ParseMorphMode(s string) MorphMode {
	switch s {
	case "normalized", "NORMALIZED":
		return MorphNormalized
	}
	return MorphAdditive
}

// Primitive 单一材质的连续三角形索引段
type Primitive struct {
	Start         uint32 `json:"start"`
	Count         uint32 `json:"count"`
	MaterialIndex int32  `json:"materialIndex"`
}

// BoneBinding 顶点与骨骼的绑定
type BoneBinding struct {
	Vertex int     `json:"vertex"`
	Bone   int     `json:"bone"`
	Weight float32 `json:"weight"`
}

// WeightPair 源顶点上的一对(骨骼, 权重)原始索引
type WeightPair struct {
	Bone   int
	Weight int
}
