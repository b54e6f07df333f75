package meshbake

import (
	"math"

	dmat "github.com/flywave/go3d/float64/mat4"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// SkinController 外部蒙皮控制器数据
type SkinController struct {
	Name    string
	Streams *StreamSet
	// BindShapeMatrix 为空时视为单位矩阵
	BindShapeMatrix *dmat.T
	Joints          []string
	// InverseBindMatrices 在 BindMatrixStream 为 NoStream 时使用
	InverseBindMatrices []dmat.T
	BindMatrixStream    StreamID
	JointStream         StreamID
	WeightStream        StreamID
	// VertexWeights 按源顶点索引的(骨骼, 权重)原始索引列表
	VertexWeights [][]WeightPair
}

func NewSkinController(name string, streams *StreamSet) *SkinController {
	return &SkinController{
		Name:             name,
		Streams:          streams,
		BindMatrixStream: NoStream,
		JointStream:      NoStream,
		WeightStream:     NoStream,
	}
}

// BoneLookup 按名称查找骨骼节点
type BoneLookup interface {
	FindBone(name string) (int, bool)
}

type BoneLookupFunc func(name string) (int, bool)

func (f BoneLookupFunc) FindBone(name string) (int, bool) {
	return f(name)
}

// Bone 蒙皮骨骼及其绑定变换
type Bone struct {
	Name          string `json:"name"`
	Node          int    `json:"node"`
	Missing       bool   `json:"missing,omitempty"`
	BindTransform dmat.T `json:"bindTransform"`
}

// Skin 网格的蒙皮结果
type Skin struct {
	Bindings []BoneBinding `json:"bindings"`
	Bones    []*Bone       `json:"bones"`
}

// VertexBindings 返回某顶点的全部绑定
func (s *Skin) VertexBindings(v int) []BoneBinding {
	var out []BoneBinding
	for _, b := range s.Bindings {
		if b.Vertex == v {
			out = append(out, b)
		}
	}
	return out
}

func (c *SkinController) resolvePair(p WeightPair) (int, float32, error) {
	bone := p.Bone
	if c.JointStream != NoStream && bone >= 0 {
		f, err := c.Streams.Scalar(c.JointStream, bone)
		if err != nil {
			return 0, 0, err
		}
		bone = int(math.Round(float64(f)))
	}
	w, err := c.Streams.Scalar(c.WeightStream, p.Weight)
	if err != nil {
		return 0, 0, err
	}
	return bone, w, nil
}

func (c *SkinController) inverseBind(i int) (dmat.T, error) {
	if c.BindMatrixStream != NoStream {
		return c.Streams.Matrix(c.BindMatrixStream, i)
	}
	if i < len(c.InverseBindMatrices) {
		return c.InverseBindMatrices[i], nil
	}
	return dmat.T{}, errors.Errorf("joint %q has no inverse bind matrix", c.Joints[i])
}

func (c *SkinController) bindShape() dmat.T {
	if c.BindShapeMatrix == nil {
		return dmat.Ident
	}
	return *c.BindShapeMatrix
}

// ResolveSkin 计算每个统一顶点的骨骼绑定以及每根骨骼的绑定变换
func ResolveSkin(m *Mesh, ctrl *SkinController, bones BoneLookup, ctx *NodeContext, opts *Options) (*Skin, error) {
	if ctrl == nil {
		return nil, errors.New("nil skin controller")
	}
	if ctrl.Streams.Get(ctrl.WeightStream) == nil {
		return nil, errors.Wrapf(ErrUnknownStream, "skin %q weight stream", ctrl.Name)
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if ctx == nil {
		ctx = &NodeContext{}
	}
	log := opts.logger().With(zap.String("mesh", m.Name), zap.String("skin", ctrl.Name))

	skin := &Skin{}
	if err := resolveBones(skin, ctrl, bones, ctx, opts, log); err != nil {
		return nil, err
	}

	maxBones := opts.maxBones()
	truncated, invalid := false, false
	for v := range m.Tuples {
		var kept []BoneBinding
		src := m.Tuples[v].SourceVertex()
		if src >= 0 && src < len(ctrl.VertexWeights) {
			for _, pair := range ctrl.VertexWeights[src] {
				bone, weight, err := ctrl.resolvePair(pair)
				if err != nil {
					if !invalid {
						log.Warn("skipping unresolvable weight pair", zap.Int("vertex", src), zap.Error(err))
						invalid = true
					}
					continue
				}
				if bone < 0 || bone >= len(ctrl.Joints) || weight == 0 {
					continue
				}
				if len(kept) < maxBones {
					kept = append(kept, BoneBinding{Vertex: v, Bone: bone, Weight: weight})
					continue
				}
				if !truncated {
					log.Warn("vertex exceeds bone influence limit, keeping the largest weights",
						zap.Int("vertex", v), zap.Int("limit", maxBones))
					truncated = true
				}
				smallest := 0
				for k := 1; k < len(kept); k++ {
					if kept[k].Weight < kept[smallest].Weight {
						smallest = k
					}
				}
				if weight > kept[smallest].Weight {
					kept[smallest] = BoneBinding{Vertex: v, Bone: bone, Weight: weight}
				}
			}
		}

		var total float32
		for _, b := range kept {
			total += b.Weight
		}
		if total == 0 {
			if len(ctrl.Joints) > 0 {
				skin.Bindings = append(skin.Bindings, BoneBinding{Vertex: v, Bone: 0, Weight: 0})
			}
			continue
		}
		for i := range kept {
			kept[i].Weight /= total
		}
		skin.Bindings = append(skin.Bindings, kept...)
	}
	return skin, nil
}

func resolveBones(skin *Skin, ctrl *SkinController, bones BoneLookup, ctx *NodeContext, opts *Options, log *zap.Logger) error {
	invOffset, err := invertMatrix(ctx.objectOffset())
	if err != nil {
		return errors.Wrap(err, "object offset")
	}
	bindShape := ctrl.bindShape()
	for i, name := range ctrl.Joints {
		bone := &Bone{Name: name}
		node, ok := -1, false
		if bones != nil {
			node, ok = bones.FindBone(name)
		}
		if !ok {
			log.Warn("bone not found, using fallback", zap.String("bone", name), zap.Int("fallback", ctx.FallbackBone))
			node = ctx.FallbackBone
			bone.Missing = true
		}
		bone.Node = node

		inv, err := ctrl.inverseBind(i)
		if err != nil {
			return err
		}
		if opts.StripBindScale {
			inv = stripScale(inv)
		}
		var withShape dmat.T
		withShape.AssignMul(&inv, &bindShape)
		bone.BindTransform.AssignMul(&withShape, &invOffset)
		skin.Bones = append(skin.Bones, bone)
	}
	return nil
}

// stripScale 把旋转部分的各列归一化, 行列式的符号即镜像保持不变
func stripScale(m dmat.T) dmat.T {
	for c := 0; c < 3; c++ {
		col := dvec3.T{m[c][0], m[c][1], m[c][2]}
		s := col.Length()
		if s == 0 {
			continue
		}
		for r := 0; r < 3; r++ {
			m[c][r] /= s
		}
	}
	return m
}

func invertMatrix(m *dmat.T) (dmat.T, error) {
	d := mat.NewDense(4, 4, nil)
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			d.Set(r, c, m[c][r])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		if cond, ok := err.(mat.Condition); !ok || math.IsInf(float64(cond), 1) {
			return dmat.T{}, errors.Wrap(err, "invert matrix")
		}
	}
	var out dmat.T
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = inv.At(r, c)
		}
	}
	return out, nil
}
