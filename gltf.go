package meshbake

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/pkg/errors"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

const (
	// GLTFVersion 定义GLTF规范版本
	GLTFVersion = "2.0"

	// PaddingChar 用于二进制填充的字符
	PaddingChar = 0x20

	// gltfMaxInfluences JOINTS_0/WEIGHTS_0 每个顶点的影响数
	gltfMaxInfluences = 4
)

// ExportGltf 将网格转换为GLTF文档
func ExportGltf(meshes []*Mesh) (*gltf.Document, error) {
	doc := CreateDoc()
	for _, mesh := range meshes {
		if err := BuildGltf(doc, mesh); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// CreateDoc 创建一个新的GLTF文档
func CreateDoc() *gltf.Document {
	doc := &gltf.Document{
		Asset: gltf.Asset{
			Version: GLTFVersion,
		},
		Scenes: []*gltf.Scene{{}},
	}
	doc.Scene = gltf.Index(0)
	return doc
}

// bufferWriter 用于计算缓冲区大小的写入器
type bufferWriter struct {
	writer io.Writer
	size   int
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.size += n
	return n, err
}

func (w *bufferWriter) Bytes() []byte {
	return w.writer.(*bytes.Buffer).Bytes()
}

func newBufferWriter() *bufferWriter {
	return &bufferWriter{
		writer: bytes.NewBuffer(nil),
	}
}

// calcPadding 计算需要的填充字节数
func calcPadding(offset, unit int) int {
	if unit <= 0 {
		return 0
	}
	padding := offset % unit
	if padding != 0 {
		padding = unit - padding
	}
	return padding
}

// GetGltfBinary 将GLTF文档编码为二进制格式, 结果按 paddingUnit 对齐
func GetGltfBinary(doc *gltf.Document, paddingUnit int) ([]byte, error) {
	writer := newBufferWriter()

	encoder := gltf.NewEncoder(writer)
	encoder.AsBinary = true

	if err := encoder.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "encode glb")
	}

	padding := calcPadding(writer.size, paddingUnit)
	if padding == 0 {
		return writer.Bytes(), nil
	}
	writer.Write(bytes.Repeat([]byte{PaddingChar}, padding))
	return writer.Bytes(), nil
}

// BuildGltf 把一个网格写入文档, 新建一个节点并加入默认场景
func BuildGltf(doc *gltf.Document, m *Mesh) error {
	if len(m.Vertices) == 0 || len(m.Primitives) == 0 {
		return errors.Wrapf(ErrNoGeometry, "mesh %q", m.Name)
	}
	matBase := uint32(len(doc.Materials))
	fillMaterials(doc, m.Materials)

	attributes := gltf.Attribute{
		"POSITION": modeler.WritePosition(doc, vec3Array(m.Vertices)),
	}
	if m.Normals != nil {
		attributes["NORMAL"] = modeler.WriteNormal(doc, vec3Array(m.Normals))
	}
	if m.TexCoords != nil {
		attributes["TEXCOORD_0"] = modeler.WriteTextureCoord(doc, vec2Array(m.TexCoords))
	}
	if m.TexCoords2 != nil {
		attributes["TEXCOORD_1"] = modeler.WriteTextureCoord(doc, vec2Array(m.TexCoords2))
	}
	if m.Colors != nil {
		attributes["COLOR_0"] = modeler.WriteColor(doc, m.Colors)
	}

	var skin *uint32
	if m.Skin != nil && len(m.Skin.Bones) > 0 {
		joints, weights := influenceArrays(m.Skin, len(m.Vertices))
		attributes["JOINTS_0"] = modeler.WriteJoints(doc, joints)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(doc, weights)
		skin = gltf.Index(addSkin(doc, m.Skin))
	}

	targets, names := buildTargets(doc, m)

	gm := &gltf.Mesh{Name: m.Name}
	if len(targets) > 0 {
		gm.Weights = make([]float32, len(targets))
		gm.Extras = map[string]interface{}{"targetNames": names}
	}
	for i, p := range m.Primitives {
		prim := &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(doc, m.PrimitiveIndices(i))),
			Attributes: attributes,
			Mode:       gltf.PrimitiveTriangles,
			Targets:    targets,
		}
		if p.MaterialIndex >= 0 && int(p.MaterialIndex) < len(m.Materials) {
			prim.Material = gltf.Index(matBase + uint32(p.MaterialIndex))
		}
		gm.Primitives = append(gm.Primitives, prim)
	}
	doc.Meshes = append(doc.Meshes, gm)

	nodeIndex := uint32(len(doc.Nodes))
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Name: m.Name,
		Mesh: gltf.Index(uint32(len(doc.Meshes) - 1)),
		Skin: skin,
	})
	if len(doc.Scenes) == 0 {
		doc.Scenes = append(doc.Scenes, &gltf.Scene{})
		doc.Scene = gltf.Index(0)
	}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, nodeIndex)
	return nil
}

func fillMaterials(doc *gltf.Document, mts []*Material) {
	for i, mtl := range mts {
		name := mtl.Name
		if name == "" {
			name = fmt.Sprintf("material_%d", i)
		}
		gm := &gltf.Material{Name: name, DoubleSided: true, AlphaMode: gltf.AlphaOpaque}
		cl := mtl.baseColorFactor()
		if cl[3] < 1 {
			gm.AlphaMode = gltf.AlphaBlend
		}
		gm.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{BaseColorFactor: &cl}
		doc.Materials = append(doc.Materials, gm)
	}
}

// influenceArrays 每个顶点保留最大的四个权重并重新归一化
func influenceArrays(s *Skin, n int) ([][4]uint16, [][4]float32) {
	joints := make([][4]uint16, n)
	weights := make([][4]float32, n)
	per := make([][]BoneBinding, n)
	for _, b := range s.Bindings {
		if b.Vertex >= 0 && b.Vertex < n {
			per[b.Vertex] = append(per[b.Vertex], b)
		}
	}
	for v, bs := range per {
		sort.SliceStable(bs, func(i, j int) bool { return bs[i].Weight > bs[j].Weight })
		if len(bs) > gltfMaxInfluences {
			bs = bs[:gltfMaxInfluences]
		}
		var total float32
		for _, b := range bs {
			total += b.Weight
		}
		for i, b := range bs {
			joints[v][i] = uint16(b.Bone)
			if total > 0 {
				weights[v][i] = b.Weight / total
			}
		}
		if total == 0 {
			// glTF 要求权重和为 1
			weights[v][0] = 1
		}
	}
	return joints, weights
}

// addSkin 为每根骨骼创建一个关节节点, 绑定变换作为逆绑定矩阵写出
func addSkin(doc *gltf.Document, s *Skin) uint32 {
	joints := make([]uint32, len(s.Bones))
	mats := make([]dmat.T, len(s.Bones))
	for i, b := range s.Bones {
		joints[i] = uint32(len(doc.Nodes))
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: b.Name})
		mats[i] = b.BindTransform
	}
	doc.Skins = append(doc.Skins, &gltf.Skin{
		Joints:              joints,
		InverseBindMatrices: gltf.Index(addMatrices(doc, mats)),
	})
	return uint32(len(doc.Skins) - 1)
}

// addMatrices 以 VEC4 写入后改为 MAT4 访问器
func addMatrices(doc *gltf.Document, mats []dmat.T) uint32 {
	a := make([][4]float32, len(mats)*4)
	for i := range mats {
		for c := 0; c < 4; c++ {
			for r := 0; r < 4; r++ {
				a[i*4+c][r] = float32(mats[i][c][r])
			}
		}
	}
	acc := modeler.WriteTangent(doc, a)
	doc.Accessors[acc].Type = gltf.AccessorMat4
	doc.Accessors[acc].Count /= 4
	doc.BufferViews[*doc.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

// buildTargets 变形目标以相对基础网格的差值写出
func buildTargets(doc *gltf.Document, m *Mesh) ([]gltf.Attribute, []string) {
	var targets []gltf.Attribute
	var names []string
	for _, t := range m.Morphs {
		if t == nil || t.Geometry == nil {
			continue
		}
		pos := seededVec3(m.Vertices, t.Geometry.Vertices)
		delta := make([][3]float32, len(pos))
		for i := range pos {
			delta[i] = vec3.Sub(&pos[i], &m.Vertices[i])
		}
		attr := gltf.Attribute{"POSITION": modeler.WritePosition(doc, delta)}
		if m.Normals != nil && t.Geometry.Normals != nil {
			nl := seededVec3(m.Normals, t.Geometry.Normals)
			nd := make([][3]float32, len(nl))
			for i := range nl {
				nd[i] = vec3.Sub(&nl[i], &m.Normals[i])
			}
			attr["NORMAL"] = modeler.WriteNormal(doc, nd)
		}
		targets = append(targets, attr)
		names = append(names, t.Name)
	}
	return targets, names
}

func vec3Array(src []vec3.T) [][3]float32 {
	out := make([][3]float32, len(src))
	for i := range src {
		out[i] = src[i]
	}
	return out
}

func vec2Array(src []vec2.T) [][2]float32 {
	out := make([][2]float32, len(src))
	for i := range src {
		out[i] = src[i]
	}
	return out
}
