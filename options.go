package meshbake

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Options 网格构建选项
type Options struct {
	MaxBonesPerVertex int           `yaml:"max_bones_per_vertex"`
	SplitIndices16    bool          `yaml:"split_indices_16"`
	StripBindScale    bool          `yaml:"strip_bind_scale"`
	FlipV             bool          `yaml:"flip_v"`
	GenerateNormals   bool          `yaml:"generate_normals"`
	MorphMode         string        `yaml:"morph_mode"`
	Logging           LoggingConfig `yaml:"logging"`

	// Logger 为空时由 Logging 创建
	Logger *zap.Logger `yaml:"-"`
}

// LoggingConfig 日志配置, Level 为空时不输出日志
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultOptions() *Options {
	return &Options{
		MaxBonesPerVertex: DEFAULT_MAX_BONES,
		SplitIndices16:    true,
		MorphMode:         MorphAdditive.String(),
	}
}

// LoadOptions 读取 yaml 配置, 未出现的字段保持默认值
func LoadOptions(path string) (*Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading options %s", path)
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, errors.Wrapf(err, "parsing options %s", path)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) Validate() error {
	if o.MaxBonesPerVertex < 1 {
		return errors.Errorf("max_bones_per_vertex must be positive, got %d", o.MaxBonesPerVertex)
	}
	switch o.MorphMode {
	case "", "additive", "normalized":
	default:
		return errors.Errorf("unknown morph_mode %q", o.MorphMode)
	}
	return nil
}

func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return newLogger(o.Logging)
}

func (o *Options) maxBones() int {
	if o.MaxBonesPerVertex < 1 {
		return DEFAULT_MAX_BONES
	}
	return o.MaxBonesPerVertex
}
