package kernel

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// KernelConfig is the top-level knob set for composing every subsystem.
// Config-file *format* and a file watcher are explicit non-goals; this is
// the minimal decode target a caller's own loader (or tests) can hand a
// reader to, mirroring the `yaml:"..."`-tagged config structs
// zkoranges-go-claw and dohr-michael-ozzie decode their own configs into.
type KernelConfig struct {
	Pool      PoolConfig      `yaml:"pool"`
	Cache     CacheConfig     `yaml:"cache"`
	Lock      LockConfig      `yaml:"lock"`
	Broker    BrokerConfig    `yaml:"broker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type PoolConfig struct {
	MinSize                int           `yaml:"min_size"`
	MaxSize                int           `yaml:"max_size"`
	AutoScaleInterval      time.Duration `yaml:"auto_scale_interval"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	HighCPUWatermark       float64       `yaml:"high_cpu_watermark"`
}

type CacheConfig struct {
	L1MaxSize   int           `yaml:"l1_max_size"`
	L2MaxSize   int           `yaml:"l2_max_size"`
	L3MaxSize   int           `yaml:"l3_max_size"`
	DefaultTTL  time.Duration `yaml:"default_ttl"`
}

type LockConfig struct {
	Backend        string `yaml:"backend"` // "memory" or "redis"
	RedisAddr      string `yaml:"redis_addr"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
}

type BrokerConfig struct {
	PersistDir string `yaml:"persist_dir"`
}

type SchedulerConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// LoadKernelConfig decodes a YAML document into a KernelConfig. Filesystem
// watching and environment-variable overlay are out of scope (spec.md §1
// non-goals); callers that need those build them on top of this.
func LoadKernelConfig(r io.Reader) (KernelConfig, error) {
	var cfg KernelConfig
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return KernelConfig{}, err
	}
	return cfg, nil
}
