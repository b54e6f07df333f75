package meshbake

// Material 基础材质
type Material struct {
	Name         string  `json:"name"`
	Color        [3]byte `json:"color"`
	Transparency float32 `json:"transparency"`
}

func NewMaterial(name string) *Material {
	return &Material{Name: name, Color: [3]byte{255, 255, 255}}
}

func (m *Material) GetColor() [3]byte {
	return m.Color
}

// baseColorFactor glTF 的线性 RGBA 颜色
func (m *Material) baseColorFactor() [4]float32 {
	return [4]float32{
		float32(m.Color[0]) / 255,
		float32(m.Color[1]) / 255,
		float32(m.Color[2]) / 255,
		1 - m.Transparency,
	}
}
