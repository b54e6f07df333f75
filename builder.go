package meshbake

import (
	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Geometry 外部文档中的一个几何体
type Geometry struct {
	Name      string
	Streams   *StreamSet
	Sets      []*PolygonSet
	Materials []*Material
}

// MaterialIndices 按材质名称建立索引表
func (g *Geometry) MaterialIndices() map[string]int {
	out := make(map[string]int, len(g.Materials))
	for i, m := range g.Materials {
		if _, ok := out[m.Name]; !ok {
			out[m.Name] = i
		}
	}
	return out
}

// NodeContext 实例化几何体的节点信息
type NodeContext struct {
	// ObjectOffset 为空时视为单位矩阵
	ObjectOffset *dmat.T
	Mirrored     bool
	// Materials 材质符号到材质索引, 为空时使用 Geometry.MaterialIndices
	Materials    map[string]int
	FallbackBone int
}

func (c *NodeContext) objectOffset() *dmat.T {
	if c == nil || c.ObjectOffset == nil {
		return &dmat.Ident
	}
	return c.ObjectOffset
}

// Builder 根据选项构建网格, 可在多个 goroutine 中并发使用
type Builder struct {
	opts Options
	log  *zap.Logger
}

func NewBuilder(opts *Options) *Builder {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	o.Logger = o.logger()
	return &Builder{opts: o, log: o.Logger}
}

func (b *Builder) Options() *Options {
	o := b.opts
	return &o
}

// Build 三角化并统一几何体的所有多边形集合. 无效的集合会被跳过.
func (b *Builder) Build(geom *Geometry, ctx *NodeContext) (*Mesh, error) {
	if geom == nil || geom.Streams == nil {
		return nil, errors.Wrap(ErrNoGeometry, "nil geometry")
	}
	if ctx == nil {
		ctx = &NodeContext{}
	}
	materials := ctx.Materials
	if materials == nil {
		materials = geom.MaterialIndices()
	}
	log := b.log.With(zap.String("mesh", geom.Name))

	u := NewUnifier(geom.Streams, b.opts.FlipV)
	tri := NewTriangulator(u, ctx.Mirrored, b.opts.SplitIndices16)
	for i, ps := range geom.Sets {
		material := int32(-1)
		if idx, ok := materials[ps.Material]; ok {
			material = int32(idx)
		}
		if err := tri.Triangulate(ps, material); err != nil {
			log.Warn("skipping malformed primitive",
				zap.Int("primitive", i),
				zap.Stringer("encoding", ps.Encoding),
				zap.Error(err))
		}
	}
	if len(tri.Primitives) == 0 {
		return nil, errors.Wrapf(ErrNoGeometry, "mesh %q", geom.Name)
	}

	m := &Mesh{
		Name:       geom.Name,
		Indices:    tri.Indices,
		Primitives: tri.Primitives,
		Materials:  geom.Materials,
		Tuples:     u.Vertices,
		Split:      tri.Split,
	}
	m.fillArrays()
	if b.opts.GenerateNormals && m.Normals == nil {
		m.recomputeNormals(!ctx.Mirrored)
	}
	if m.Split {
		log.Debug("mesh split into 16-bit pages", zap.Int("vertices", m.VertexCount()))
	}
	return m, nil
}

// BuildSkinned 构建网格并计算蒙皮
func (b *Builder) BuildSkinned(geom *Geometry, ctrl *SkinController, bones BoneLookup, ctx *NodeContext) (*Mesh, error) {
	m, err := b.Build(geom, ctx)
	if err != nil {
		return nil, err
	}
	if m.Skin, err = ResolveSkin(m, ctrl, bones, ctx, &b.opts); err != nil {
		return nil, errors.Wrapf(err, "mesh %q", geom.Name)
	}
	return m, nil
}

// BuildMorphTargets 用相同的节点信息构建变形目标, 保证与基础网格的顶点顺序一致
func (b *Builder) BuildMorphTargets(targets []*Geometry, ctx *NodeContext) ([]*MorphTarget, error) {
	out := make([]*MorphTarget, 0, len(targets))
	for _, g := range targets {
		m, err := b.Build(g, ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "morph target %q", g.Name)
		}
		out = append(out, &MorphTarget{Name: g.Name, Geometry: m})
	}
	return out, nil
}

// Blend 按配置的混合方式取 t 时刻的变形结果
func (b *Builder) Blend(base *Mesh, targets []*MorphTarget, sampler WeightSampler, t float64) *Blended {
	return BlendAt(base, targets, sampler, t, ParseMorphMode(b.opts.MorphMode))
}
