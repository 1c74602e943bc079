// Package runtime wires every component package into the single entry
// point a host embeds: PreTick/PreInput per spec.md §2's data flow.
package runtime

import (
	"os"

	"github.com/lixenwraith/tasrun/errs"
	"github.com/lixenwraith/tasrun/toml"
)

// Config is the runtime's own boot-time configuration, loaded from a TOML
// file the same way the teacher's engine loads its own settings.
type Config struct {
	MaxBufferBytes            int    `toml:"max_buffer_bytes"`
	MaxMessageSize            int    `toml:"max_message_size"`
	MaxCustomContexts         int    `toml:"max_custom_contexts"`
	MaxCustomContextsPerLevel int    `toml:"max_custom_contexts_per_level"`
	MaxRecordFrames           int     `toml:"max_record_frames"`
	SleepIntervalTicks        int     `toml:"sleep_interval_ticks"`
	RecordingDeltaMs          float32 `toml:"recording_delta_ms"`
	KeyAliases                map[string]string `toml:"key_aliases"`
}

// DefaultConfig returns the configuration the runtime boots with when no
// config file is supplied.
func DefaultConfig() Config {
	return Config{
		MaxBufferBytes:            16 * 1024 * 1024,
		MaxMessageSize:            64 * 1024,
		MaxCustomContexts:         64,
		MaxCustomContextsPerLevel: 16,
		MaxRecordFrames:           1 << 20,
		SleepIntervalTicks:        30,
		RecordingDeltaMs:          1000.0 / 60.0,
	}
}

// LoadConfig reads and decodes a TOML config file, starting from
// DefaultConfig and overwriting only the fields present in the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errs.Wrap(errs.InvalidArgument, "LoadConfig", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errs.Wrap(errs.InvalidArgument, "LoadConfig", err)
	}
	return cfg, nil
}
