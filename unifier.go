package meshbake

import (
	"github.com/pkg/errors"
)

// Unifier 把按属性分别索引的顶点合并为统一顶点索引
type Unifier struct {
	streams   *StreamSet
	flipV     bool
	Vertices  []VertexTuple
	bindings  []Binding
	primGroup []int
	groups    map[Binding]int
	lookup    map[tupleKey]int
}

func NewUnifier(streams *StreamSet, flipV bool) *Unifier {
	return &Unifier{
		streams: streams,
		flipV:   flipV,
		groups:  make(map[Binding]int),
		lookup:  make(map[tupleKey]int),
	}
}

// AddPrimitive 注册图元的流绑定并返回图元 ID. 绑定相同流集合的图元共享顶点.
func (u *Unifier) AddPrimitive(b Binding) int {
	g, ok := u.groups[b]
	if !ok {
		g = len(u.groups)
		u.groups[b] = g
	}
	u.bindings = append(u.bindings, b)
	u.primGroup = append(u.primGroup, g)
	return len(u.bindings) - 1
}

func (u *Unifier) Binding(prim int) (Binding, bool) {
	if prim < 0 || prim >= len(u.bindings) {
		return Binding{}, false
	}
	return u.bindings[prim], true
}

func (u *Unifier) Len() int {
	return len(u.Vertices)
}

// Resolve 解析原始索引得到顶点元组, 不修改统一顶点数组
func (u *Unifier) Resolve(prim int, raw RawIndices) (VertexTuple, error) {
	b, ok := u.Binding(prim)
	if !ok {
		return VertexTuple{}, errors.Wrapf(ErrUnknownPrimitive, "primitive %d", prim)
	}
	t := VertexTuple{
		Primitive: prim,
		Raw:       raw,
		Position:  sentinelVec3,
		Normal:    sentinelVec3,
		Color:     sentinelColor,
		UV0:       sentinelVec2,
		UV1:       sentinelVec2,
	}
	for a := AttrPosition; a < AttributeCount; a++ {
		id, idx := b[a], raw[a]
		if id == NoStream || idx == NoIndex {
			t.Raw[a] = NoIndex
			continue
		}
		var err error
		switch a {
		case AttrPosition:
			t.Position, err = u.streams.Vec3(id, idx)
		case AttrNormal:
			t.Normal, err = u.streams.Vec3(id, idx)
		case AttrColor:
			t.Color, err = u.streams.Color(id, idx)
		case AttrUV0:
			t.UV0, err = u.streams.Vec2(id, idx)
			if u.flipV {
				t.UV0[1] = 1 - t.UV0[1]
			}
		case AttrUV1:
			t.UV1, err = u.streams.Vec2(id, idx)
			if u.flipV {
				t.UV1[1] = 1 - t.UV1[1]
			}
		}
		if err != nil {
			return VertexTuple{}, errors.Wrapf(err, "resolve %s", a)
		}
		t.Present |= 1 << uint(a)
	}
	return t, nil
}

// Unify 返回元组的统一顶点索引, 未出现过的值组合会追加到数组末尾
func (u *Unifier) Unify(prim int, raw RawIndices) (int, error) {
	t, err := u.Resolve(prim, raw)
	if err != nil {
		return 0, err
	}
	k := t.key(u.primGroup[prim])
	if idx, ok := u.lookup[k]; ok {
		return idx, nil
	}
	idx := len(u.Vertices)
	u.Vertices = append(u.Vertices, t)
	u.lookup[k] = idx
	return idx, nil
}

// Reset 清空查找表, 之后的顶点不会复用已有索引
func (u *Unifier) Reset() {
	u.lookup = make(map[tupleKey]int)
}

// Pad 复制最后一个元组直到数组长度达到 n
func (u *Unifier) Pad(n int) {
	if len(u.Vertices) == 0 {
		return
	}
	last := u.Vertices[len(u.Vertices)-1]
	for len(u.Vertices) < n {
		u.Vertices = append(u.Vertices, last)
	}
}
