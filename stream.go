package meshbake

import (
	"math"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/float64/vec4"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/pkg/errors"
)

// StreamID 流在 StreamSet 中的下标
type StreamID int

// NoStream 表示属性缺失
const NoStream StreamID = -1

// Stream 定长分组的数值流, 构建后不可修改
type Stream struct {
	Name       string
	Data       []float32
	Stride     int
	Components map[string]int
}

// NewStream 创建数值流, components 为分量名到组内偏移的映射, 可为空
func NewStream(name string, stride int, data []float32, components map[string]int) *Stream {
	if stride <= 0 {
		stride = 1
	}
	return &Stream{Name: name, Data: data, Stride: stride, Components: components}
}

// Count 返回分组数量
func (s *Stream) Count() int {
	if s == nil || s.Stride == 0 {
		return 0
	}
	return len(s.Data) / s.Stride
}

func (s *Stream) offset(names []string, fallback int) int {
	for _, n := range names {
		if off, ok := s.Components[n]; ok {
			return off
		}
	}
	return fallback
}

func (s *Stream) component(raw int, off int) float32 {
	if off < 0 || off >= s.Stride {
		return 0
	}
	return s.Data[raw*s.Stride+off]
}

// StreamSet 流的集合, 顶点元组通过 StreamID 引用其中的流
type StreamSet struct {
	streams []*Stream
}

func NewStreamSet() *StreamSet {
	return &StreamSet{}
}

// Add 添加流并返回其 ID
func (ss *StreamSet) Add(s *Stream) StreamID {
	ss.streams = append(ss.streams, s)
	return StreamID(len(ss.streams) - 1)
}

func (ss *StreamSet) Len() int {
	return len(ss.streams)
}

// Get 返回流, id 无效时返回 nil
func (ss *StreamSet) Get(id StreamID) *Stream {
	if ss == nil || id < 0 || int(id) >= len(ss.streams) {
		return nil
	}
	return ss.streams[id]
}

func (ss *StreamSet) lookup(id StreamID, raw int) (*Stream, error) {
	s := ss.Get(id)
	if s == nil {
		return nil, errors.Wrapf(ErrUnknownStream, "stream %d", id)
	}
	if raw < 0 || raw >= s.Count() {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "stream %q index %d (count %d)", s.Name, raw, s.Count())
	}
	return s, nil
}

// Group 返回原始索引对应的整组数值
func (ss *StreamSet) Group(id StreamID, raw int) ([]float32, error) {
	s, err := ss.lookup(id, raw)
	if err != nil {
		return nil, err
	}
	return s.Data[raw*s.Stride : (raw+1)*s.Stride], nil
}

func (ss *StreamSet) Scalar(id StreamID, raw int) (float32, error) {
	s, err := ss.lookup(id, raw)
	if err != nil {
		return 0, err
	}
	return s.component(raw, 0), nil
}

func (ss *StreamSet) Vec3(id StreamID, raw int) (vec3.T, error) {
	s, err := ss.lookup(id, raw)
	if err != nil {
		return vec3.T{}, err
	}
	return vec3.T{
		s.component(raw, s.offset([]string{"X"}, 0)),
		s.component(raw, s.offset([]string{"Y"}, 1)),
		s.component(raw, s.offset([]string{"Z"}, 2)),
	}, nil
}

func (ss *StreamSet) Vec2(id StreamID, raw int) (vec2.T, error) {
	s, err := ss.lookup(id, raw)
	if err != nil {
		return vec2.T{}, err
	}
	return vec2.T{
		s.component(raw, s.offset([]string{"S", "U"}, 0)),
		s.component(raw, s.offset([]string{"T", "V"}, 1)),
	}, nil
}

// Color 读取颜色并量化到 0..255, 三通道流的 alpha 为 255
func (ss *StreamSet) Color(id StreamID, raw int) ([4]uint8, error) {
	s, err := ss.lookup(id, raw)
	if err != nil {
		return [4]uint8{}, err
	}
	cl := [4]uint8{0, 0, 0, 255}
	for i, n := range []string{"R", "G", "B", "A"} {
		off := s.offset([]string{n}, i)
		if off >= s.Stride {
			continue
		}
		cl[i] = quantize(s.component(raw, off))
	}
	return cl, nil
}

// Matrix 读取按行主序存储的 4x4 矩阵
func (ss *StreamSet) Matrix(id StreamID, raw int) (dmat.T, error) {
	g, err := ss.Group(id, raw)
	if err != nil {
		return dmat.T{}, err
	}
	if len(g) < 16 {
		return dmat.T{}, errors.Errorf("stream %d stride %d too small for matrix", id, len(g))
	}
	var a [16]float64
	for i := range a {
		a[i] = float64(g[i])
	}
	return RowMajorMatrix(a), nil
}

// RowMajorMatrix 由行主序的 16 个数构造矩阵
func RowMajorMatrix(a [16]float64) dmat.T {
	return dmat.T{
		vec4.T{a[0], a[4], a[8], a[12]},
		vec4.T{a[1], a[5], a[9], a[13]},
		vec4.T{a[2], a[6], a[10], a[14]},
		vec4.T{a[3], a[7], a[11], a[15]},
	}
}

func quantize(f float32) uint8 {
	v := math.Round(float64(f) * 255)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
