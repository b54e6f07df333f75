package meshbake

import (
	"math"
	"sort"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
)

// MorphTarget 与基础网格拓扑相同的变形目标
type MorphTarget struct {
	Name     string
	Geometry *Mesh
}

// WeightSampler 返回给定时间的各目标权重
type WeightSampler interface {
	Weights(t float64) []float32
}

// ConstantWeights 与时间无关的权重
type ConstantWeights []float32

func (w ConstantWeights) Weights(float64) []float32 {
	return w
}

// KeyframeWeights 关键帧权重, 帧间线性插值, 超出范围取端点
type KeyframeWeights struct {
	Times  []float64
	Values [][]float32
}

func (k *KeyframeWeights) Weights(t float64) []float32 {
	n := len(k.Times)
	if n == 0 {
		return nil
	}
	if t <= k.Times[0] {
		return k.Values[0]
	}
	if t >= k.Times[n-1] {
		return k.Values[n-1]
	}
	i := sort.SearchFloat64s(k.Times, t)
	if k.Times[i] == t {
		return k.Values[i]
	}
	t0, t1 := k.Times[i-1], k.Times[i]
	f := float32((t - t0) / (t1 - t0))
	a, b := k.Values[i-1], k.Values[i]
	out := make([]float32, len(a))
	for j := range out {
		bj := a[j]
		if j < len(b) {
			bj = b[j]
		}
		out[j] = a[j] + (bj-a[j])*f
	}
	return out
}

// Blended 混合后的几何数据
type Blended struct {
	Positions  []vec3.T
	Normals    []vec3.T
	Colors     [][4]byte
	TexCoords  []vec2.T
	TexCoords2 []vec2.T
}

// BlendAt 取 t 时刻的权重进行混合
func BlendAt(base *Mesh, targets []*MorphTarget, sampler WeightSampler, t float64, mode MorphMode) *Blended {
	return Blend(base, targets, sampler.Weights(t), mode)
}

// Blend 按权重混合变形目标. 目标与基础网格的统一顶点必须一一对应, 这里不做检查.
// 目标保存的是完整几何. 叠加模式累加 w*(目标-基础), 归一化模式在基础乘以 clamp(1-Σw) 后累加 w*目标.
func Blend(base *Mesh, targets []*MorphTarget, weights []float32, mode MorphMode) *Blended {
	count := len(targets)
	if len(weights) < count {
		count = len(weights)
	}

	baseScale := float32(1)
	if mode == MorphNormalized {
		var sum float32
		for i := 0; i < count; i++ {
			sum += weights[i]
		}
		baseScale = clamp01(1 - sum)
	}

	out := &Blended{
		Positions:  scaledVec3(base.Vertices, baseScale),
		Normals:    scaledVec3(base.Normals, baseScale),
		TexCoords:  scaledVec2(base.TexCoords, baseScale),
		TexCoords2: scaledVec2(base.TexCoords2, baseScale),
	}
	var colors [][4]int32
	if base.Colors != nil {
		colors = make([][4]int32, len(base.Colors))
		for v, c := range base.Colors {
			for ch := 0; ch < 4; ch++ {
				colors[v][ch] = weightedChannel(c[ch], baseScale)
			}
		}
	}

	for i := 0; i < count; i++ {
		w := weights[i]
		if w == 0 || targets[i] == nil || targets[i].Geometry == nil {
			continue
		}
		tg := targets[i].Geometry
		relative := mode == MorphAdditive
		accumulateVec3(out.Positions, morphVec3(base.Vertices, tg.Vertices, relative), w)
		accumulateVec3(out.Normals, morphVec3(base.Normals, tg.Normals, relative), w)
		accumulateVec2(out.TexCoords, morphVec2(base.TexCoords, tg.TexCoords, relative), w)
		accumulateVec2(out.TexCoords2, morphVec2(base.TexCoords2, tg.TexCoords2, relative), w)
		if colors != nil {
			src := base.Colors
			for v := range colors {
				c := src[v]
				if v < len(tg.Colors) {
					c = tg.Colors[v]
				}
				for ch := 0; ch < 4; ch++ {
					if relative {
						colors[v][ch] += weightedDelta(c[ch], src[v][ch], w)
					} else {
						colors[v][ch] += weightedChannel(c[ch], w)
					}
				}
			}
		}
	}

	if colors != nil {
		out.Colors = make([][4]byte, len(colors))
		for v := range colors {
			for ch := 0; ch < 4; ch++ {
				out.Colors[v][ch] = clampByte(colors[v][ch])
			}
		}
	}
	return out
}

// seededVec3 以基础数据为底, 目标缺失的部分沿用基础值
func seededVec3(base, target []vec3.T) []vec3.T {
	if base == nil {
		return nil
	}
	tmp := make([]vec3.T, len(base))
	copy(tmp, base)
	copy(tmp, target)
	return tmp
}

func seededVec2(base, target []vec2.T) []vec2.T {
	if base == nil {
		return nil
	}
	tmp := make([]vec2.T, len(base))
	copy(tmp, base)
	copy(tmp, target)
	return tmp
}

// morphVec3 目标数据, relative 时转换为相对基础的差值. 缺失部分差值为零.
func morphVec3(base, target []vec3.T, relative bool) []vec3.T {
	tmp := seededVec3(base, target)
	if relative {
		for i := range tmp {
			tmp[i].Sub(&base[i])
		}
	}
	return tmp
}

func morphVec2(base, target []vec2.T, relative bool) []vec2.T {
	tmp := seededVec2(base, target)
	if relative {
		for i := range tmp {
			tmp[i].Sub(&base[i])
		}
	}
	return tmp
}

func scaledVec3(src []vec3.T, s float32) []vec3.T {
	if src == nil {
		return nil
	}
	out := make([]vec3.T, len(src))
	for i := range src {
		out[i] = src[i].Scaled(s)
	}
	return out
}

func scaledVec2(src []vec2.T, s float32) []vec2.T {
	if src == nil {
		return nil
	}
	out := make([]vec2.T, len(src))
	for i := range src {
		out[i] = src[i].Scaled(s)
	}
	return out
}

func accumulateVec3(dst, src []vec3.T, w float32) {
	for i := range dst {
		v := src[i].Scaled(w)
		dst[i].Add(&v)
	}
}

func accumulateVec2(dst, src []vec2.T, w float32) {
	for i := range dst {
		v := src[i].Scaled(w)
		dst[i].Add(&v)
	}
}

func weightedChannel(c uint8, w float32) int32 {
	return int32(math.Round(float64(c) * float64(w)))
}

func weightedDelta(c, base uint8, w float32) int32 {
	return int32(math.Round((float64(c) - float64(base)) * float64(w)))
}

func clamp01(f float32) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clampByte(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
