package meshbake

import (
	"fmt"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/pkg/errors"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

var gltfAttributes = [AttributeCount]string{"POSITION", "NORMAL", "COLOR_0", "TEXCOORD_0", "TEXCOORD_1"}

var gltfComponents = map[Attribute]map[string]int{
	AttrPosition: {"X": 0, "Y": 1, "Z": 2},
	AttrNormal:   {"X": 0, "Y": 1, "Z": 2},
	AttrColor:    {"R": 0, "G": 1, "B": 2, "A": 3},
	AttrUV0:      {"S": 0, "T": 1},
	AttrUV1:      {"S": 0, "T": 1},
}

var gltfModes = map[gltf.PrimitiveMode]Encoding{
	gltf.PrimitiveTriangles:     EncodingTriangles,
	gltf.PrimitiveTriangleStrip: EncodingTriStrips,
	gltf.PrimitiveTriangleFan:   EncodingTriFans,
}

type streamKey struct {
	accessor uint32
	delta    int64
}

// gltfReader 把 glTF 访问器转换为流, 同一访问器只转换一次
type gltfReader struct {
	doc     *gltf.Document
	streams *StreamSet
	cache   map[streamKey]StreamID
}

func newGltfReader(doc *gltf.Document) *gltfReader {
	return &gltfReader{doc: doc, streams: NewStreamSet(), cache: make(map[streamKey]StreamID)}
}

func (r *gltfReader) stream(attr Attribute, accessor uint32, delta int64) (StreamID, error) {
	k := streamKey{accessor, delta}
	if id, ok := r.cache[k]; ok {
		return id, nil
	}
	data, stride, err := readAttribute(r.doc, attr, accessor)
	if err != nil {
		return NoStream, err
	}
	if delta >= 0 {
		d, dstride, err := readAttribute(r.doc, attr, uint32(delta))
		if err != nil {
			return NoStream, err
		}
		if dstride != stride {
			return NoStream, errors.Wrapf(ErrStrideMismatch, "morph delta accessor %d", delta)
		}
		out := make([]float32, len(data))
		copy(out, data)
		for i := range out {
			if i < len(d) {
				out[i] += d[i]
			}
		}
		data = out
	}
	name := fmt.Sprintf("%s_%d", attr, accessor)
	id := r.streams.Add(NewStream(name, stride, data, gltfComponents[attr]))
	r.cache[k] = id
	return id, nil
}

// GeometryFromGltf 读取 glTF 网格的图元为多边形集合
func GeometryFromGltf(doc *gltf.Document, meshIndex int) (*Geometry, error) {
	return geometryFromGltf(doc, meshIndex, -1)
}

// MorphTargetsFromGltf 读取网格的变形目标, 目标位置为基础值加差值. 返回网格的默认权重.
func MorphTargetsFromGltf(doc *gltf.Document, meshIndex int) ([]*Geometry, ConstantWeights, error) {
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, nil, errors.Wrapf(ErrIndexOutOfRange, "mesh %d", meshIndex)
	}
	mesh := doc.Meshes[meshIndex]
	count := 0
	for _, p := range mesh.Primitives {
		if len(p.Targets) > count {
			count = len(p.Targets)
		}
	}
	names := targetNames(mesh)
	out := make([]*Geometry, 0, count)
	for t := 0; t < count; t++ {
		g, err := geometryFromGltf(doc, meshIndex, t)
		if err != nil {
			return nil, nil, err
		}
		if t < len(names) {
			g.Name = names[t]
		} else {
			g.Name = fmt.Sprintf("%s_target_%d", g.Name, t)
		}
		out = append(out, g)
	}
	weights := make(ConstantWeights, count)
	copy(weights, mesh.Weights)
	return out, weights, nil
}

func targetNames(mesh *gltf.Mesh) []string {
	extras, ok := mesh.Extras.(map[string]interface{})
	if !ok {
		return nil
	}
	var names []string
	switch v := extras["targetNames"].(type) {
	case []string:
		names = v
	case []interface{}:
		for _, n := range v {
			s, _ := n.(string)
			names = append(names, s)
		}
	}
	return names
}

func geometryFromGltf(doc *gltf.Document, meshIndex int, target int) (*Geometry, error) {
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "mesh %d", meshIndex)
	}
	mesh := doc.Meshes[meshIndex]
	r := newGltfReader(doc)
	geom := &Geometry{
		Name:      mesh.Name,
		Streams:   r.streams,
		Materials: materialsFromGltf(doc),
	}
	if geom.Name == "" {
		geom.Name = fmt.Sprintf("mesh_%d", meshIndex)
	}

	for pi, p := range mesh.Primitives {
		enc, ok := gltfModes[p.Mode]
		if !ok {
			continue
		}
		ps := &PolygonSet{Encoding: enc}
		if p.Material != nil && int(*p.Material) < len(geom.Materials) {
			ps.Material = geom.Materials[*p.Material].Name
		}
		count := -1
		for attr := AttrPosition; attr < AttributeCount; attr++ {
			name := gltfAttributes[attr]
			acc, ok := p.Attributes[name]
			if !ok {
				continue
			}
			delta := int64(-1)
			if target >= 0 && target < len(p.Targets) && (attr == AttrPosition || attr == AttrNormal) {
				if d, ok := p.Targets[target][name]; ok {
					delta = int64(d)
				}
			}
			id, err := r.stream(attr, acc, delta)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %q primitive %d %s", geom.Name, pi, name)
			}
			// 所有属性共用同一个索引
			ps.Inputs = append(ps.Inputs, Input{Attribute: attr, Stream: id, Offset: 0})
			if attr == AttrPosition {
				count = r.streams.Get(id).Count()
			}
		}
		if count < 0 {
			continue
		}

		var indices []int
		if p.Indices != nil {
			idx, err := readIndices(doc, *p.Indices)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %q primitive %d indices", geom.Name, pi)
			}
			indices = idx
		} else {
			indices = make([]int, count)
			for i := range indices {
				indices[i] = i
			}
		}
		if enc == EncodingTriangles {
			// 多余的索引不足一个三角形, 丢弃
			indices = indices[:len(indices)-len(indices)%3]
		}
		ps.Indices = [][]int{indices}
		geom.Sets = append(geom.Sets, ps)
	}
	return geom, nil
}

func materialsFromGltf(doc *gltf.Document) []*Material {
	out := make([]*Material, len(doc.Materials))
	seen := make(map[string]bool)
	for i, gm := range doc.Materials {
		name := gm.Name
		if name == "" || seen[name] {
			name = fmt.Sprintf("material_%d", i)
		}
		seen[name] = true
		mtl := NewMaterial(name)
		if gm.PBRMetallicRoughness != nil && gm.PBRMetallicRoughness.BaseColorFactor != nil {
			cl := gm.PBRMetallicRoughness.BaseColorFactor
			mtl.Color = [3]byte{quantize(cl[0]), quantize(cl[1]), quantize(cl[2])}
			mtl.Transparency = 1 - cl[3]
		}
		out[i] = mtl
	}
	return out
}

// SkinFromGltf 读取网格第一个带 JOINTS_0/WEIGHTS_0 的图元的蒙皮数据.
// 源顶点即该图元 POSITION 访问器的下标, 因此蒙皮网格的各图元需共享 POSITION 访问器.
func SkinFromGltf(doc *gltf.Document, meshIndex, skinIndex int) (*SkinController, error) {
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "mesh %d", meshIndex)
	}
	if skinIndex < 0 || skinIndex >= len(doc.Skins) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "skin %d", skinIndex)
	}
	gs := doc.Skins[skinIndex]
	ctrl := NewSkinController(gs.Name, NewStreamSet())
	for _, j := range gs.Joints {
		name := ""
		if int(j) < len(doc.Nodes) {
			name = doc.Nodes[j].Name
		}
		if name == "" {
			name = fmt.Sprintf("node_%d", j)
		}
		ctrl.Joints = append(ctrl.Joints, name)
	}
	if gs.InverseBindMatrices != nil {
		mats, err := readMatrices(doc, *gs.InverseBindMatrices)
		if err != nil {
			return nil, errors.Wrap(err, "inverse bind matrices")
		}
		ctrl.InverseBindMatrices = mats
	} else {
		for range ctrl.Joints {
			ctrl.InverseBindMatrices = append(ctrl.InverseBindMatrices, dmat.Ident)
		}
	}

	for _, p := range doc.Meshes[meshIndex].Primitives {
		jAcc, ok1 := p.Attributes["JOINTS_0"]
		wAcc, ok2 := p.Attributes["WEIGHTS_0"]
		if !ok1 || !ok2 {
			continue
		}
		joints, weights, err := readInfluences(doc, jAcc, wAcc)
		if err != nil {
			return nil, err
		}
		flat := make([]float32, 0, len(weights)*4)
		ctrl.VertexWeights = make([][]WeightPair, len(joints))
		for v := range joints {
			for k := 0; k < 4; k++ {
				i := len(flat)
				flat = append(flat, weights[v][k])
				if weights[v][k] == 0 {
					continue
				}
				ctrl.VertexWeights[v] = append(ctrl.VertexWeights[v], WeightPair{Bone: int(joints[v][k]), Weight: i})
			}
		}
		ctrl.WeightStream = ctrl.Streams.Add(NewStream("WEIGHTS_0", 1, flat, nil))
		return ctrl, nil
	}
	return nil, errors.Errorf("mesh %d has no JOINTS_0/WEIGHTS_0", meshIndex)
}

func readInfluences(doc *gltf.Document, jIndex, wIndex uint32) ([][4]uint16, [][4]float32, error) {
	jAcc, jEmpty, err := accessorAt(doc, jIndex)
	if err != nil {
		return nil, nil, errors.Wrap(err, "JOINTS_0")
	}
	wAcc, wEmpty, err := accessorAt(doc, wIndex)
	if err != nil {
		return nil, nil, errors.Wrap(err, "WEIGHTS_0")
	}
	if jAcc.Count != wAcc.Count {
		return nil, nil, errors.Wrapf(ErrStrideMismatch, "JOINTS_0 count %d, WEIGHTS_0 count %d", jAcc.Count, wAcc.Count)
	}
	joints := make([][4]uint16, jAcc.Count)
	weights := make([][4]float32, wAcc.Count)
	if !jEmpty {
		if joints, err = modeler.ReadJoints(doc, jAcc, nil); err != nil {
			return nil, nil, errors.Wrap(err, "JOINTS_0")
		}
	}
	if !wEmpty {
		if weights, err = modeler.ReadWeights(doc, wAcc, nil); err != nil {
			return nil, nil, errors.Wrap(err, "WEIGHTS_0")
		}
	}
	return joints, weights, nil
}

// NodeLookup 按节点名称查找骨骼
func NodeLookup(doc *gltf.Document) BoneLookup {
	byName := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if _, ok := byName[n.Name]; !ok && n.Name != "" {
			byName[n.Name] = i
		}
	}
	return BoneLookupFunc(func(name string) (int, bool) {
		i, ok := byName[name]
		return i, ok
	})
}

// accessorAt 检查访问器下标. 没有缓冲视图的访问器按全零处理, 此时 empty 为真.
func accessorAt(doc *gltf.Document, index uint32) (acc *gltf.Accessor, empty bool, err error) {
	if int(index) >= len(doc.Accessors) {
		return nil, false, errors.Wrapf(ErrIndexOutOfRange, "accessor %d", index)
	}
	acc = doc.Accessors[index]
	return acc, acc.BufferView == nil && acc.Sparse == nil, nil
}

// readAttribute 读取顶点属性访问器为 float32 数组及其分量数
func readAttribute(doc *gltf.Document, attr Attribute, index uint32) ([]float32, int, error) {
	acc, empty, err := accessorAt(doc, index)
	if err != nil {
		return nil, 0, err
	}
	if empty {
		comps := int(acc.Type.Components())
		return make([]float32, int(acc.Count)*comps), comps, nil
	}
	switch attr {
	case AttrPosition:
		v, err := modeler.ReadPosition(doc, acc, nil)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "accessor %d", index)
		}
		return flattenVec3(v), 3, nil
	case AttrNormal:
		v, err := modeler.ReadNormal(doc, acc, nil)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "accessor %d", index)
		}
		return flattenVec3(v), 3, nil
	case AttrUV0, AttrUV1:
		v, err := modeler.ReadTextureCoord(doc, acc, nil)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "accessor %d", index)
		}
		out := make([]float32, 0, len(v)*2)
		for _, e := range v {
			out = append(out, e[0], e[1])
		}
		return out, 2, nil
	case AttrColor:
		return readColors(doc, acc, index)
	}
	return nil, 0, errors.Wrapf(ErrUnknownStream, "attribute %s", attr)
}

// readColors 读取 COLOR_0 的线性分量. modeler.ReadColor 会做 sRGB 转换, 所以这里走 ReadAccessor.
func readColors(doc *gltf.Document, acc *gltf.Accessor, index uint32) ([]float32, int, error) {
	if acc.Type != gltf.AccessorVec3 && acc.Type != gltf.AccessorVec4 {
		return nil, 0, errors.Errorf("accessor %d: color type %v", index, acc.Type)
	}
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "accessor %d", index)
	}
	var out []float32
	switch v := data.(type) {
	case [][3]float32:
		for _, e := range v {
			out = append(out, e[0], e[1], e[2])
		}
	case [][4]float32:
		for _, e := range v {
			out = append(out, e[0], e[1], e[2], e[3])
		}
	case [][3]uint8:
		for _, e := range v {
			out = append(out, gltf.DenormalizeUbyte(e[0]), gltf.DenormalizeUbyte(e[1]), gltf.DenormalizeUbyte(e[2]))
		}
	case [][4]uint8:
		for _, e := range v {
			out = append(out, gltf.DenormalizeUbyte(e[0]), gltf.DenormalizeUbyte(e[1]),
				gltf.DenormalizeUbyte(e[2]), gltf.DenormalizeUbyte(e[3]))
		}
	case [][3]uint16:
		for _, e := range v {
			out = append(out, gltf.DenormalizeUshort(e[0]), gltf.DenormalizeUshort(e[1]), gltf.DenormalizeUshort(e[2]))
		}
	case [][4]uint16:
		for _, e := range v {
			out = append(out, gltf.DenormalizeUshort(e[0]), gltf.DenormalizeUshort(e[1]),
				gltf.DenormalizeUshort(e[2]), gltf.DenormalizeUshort(e[3]))
		}
	default:
		return nil, 0, errors.Errorf("accessor %d: color component %v", index, acc.ComponentType)
	}
	return out, int(acc.Type.Components()), nil
}

// readMatrices 读取列主序的 MAT4 访问器
func readMatrices(doc *gltf.Document, index uint32) ([]dmat.T, error) {
	acc, empty, err := accessorAt(doc, index)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltf.AccessorMat4 || acc.ComponentType != gltf.ComponentFloat {
		return nil, errors.Wrapf(ErrStrideMismatch, "accessor %d is %v, want float MAT4", index, acc.Type)
	}
	out := make([]dmat.T, acc.Count)
	if empty {
		return out, nil
	}
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "accessor %d", index)
	}
	for i, e := range data.([][4][4]float32) {
		for c := 0; c < 4; c++ {
			for r := 0; r < 4; r++ {
				out[i][c][r] = float64(e[c][r])
			}
		}
	}
	return out, nil
}

func readIndices(doc *gltf.Document, index uint32) ([]int, error) {
	acc, empty, err := accessorAt(doc, index)
	if err != nil {
		return nil, err
	}
	out := make([]int, acc.Count)
	if empty {
		return out, nil
	}
	idx, err := modeler.ReadIndices(doc, acc, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "accessor %d", index)
	}
	for i, v := range idx {
		out[i] = int(v)
	}
	return out, nil
}

func flattenVec3(v [][3]float32) []float32 {
	out := make([]float32, 0, len(v)*3)
	for _, e := range v {
		out = append(out, e[0], e[1], e[2])
	}
	return out
}
