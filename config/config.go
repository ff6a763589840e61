// Package config loads the yaml configuration of the engine: audio format,
// output device, recorder, search paths, logging and the initial layout of
// nodes.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/log"
	"github.com/psychosynth/psynth/signal"
)

// Output drivers.
const (
	DriverNull      = "null"
	DriverWav       = "wav"
	DriverOSS       = "oss"
	DriverPortaudio = "portaudio"
	DriverEbiten    = "ebiten"
)

// Recorder formats.
const (
	FormatWav = "wav"
	FormatMp3 = "mp3"
)

// ErrInvalid is returned when config value is not valid.
var ErrInvalid = errors.New("invalid config")

// Config is the root of the yaml file.
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Output   OutputConfig   `yaml:"output"`
	Recorder RecorderConfig `yaml:"recorder"`
	Paths    []string       `yaml:"paths"`
	Logging  LoggingConfig  `yaml:"logging"`
	Nodes    []NodeConfig   `yaml:"nodes"`
}

// AudioConfig is the format of the graph.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	BlockSize  int `yaml:"block_size"`
	Channels   int `yaml:"channels"`
}

// OutputConfig selects the output driver and its device parameters.
type OutputConfig struct {
	Driver     string `yaml:"driver"`
	Device     string `yaml:"device"`
	BitDepth   int    `yaml:"bit_depth"`
	Float      bool   `yaml:"float"`
	PeriodSize int    `yaml:"period_size"`
	Periods    int    `yaml:"periods"`
	RingFrames int    `yaml:"ring_frames"`
}

// RecorderConfig enables recording of the output when path is set.
type RecorderConfig struct {
	Path     string `yaml:"path"`
	Format   string `yaml:"format"`
	BitDepth int    `yaml:"bit_depth"`
	BitRate  int    `yaml:"bitrate"`
	Quality  int    `yaml:"quality"`
	Queue    int    `yaml:"queue"`
}

// LoggingConfig sets the level and the format of the log.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// NodeConfig describes a node of the initial layout.
type NodeConfig struct {
	Kind   string         `yaml:"kind"`
	X      float64        `yaml:"x"`
	Y      float64        `yaml:"y"`
	Params map[string]any `yaml:"params"`
}

// Default returns config that plays through the null device.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: signal.DefaultFormat.SampleRate,
			BlockSize:  signal.DefaultFormat.BlockSize,
			Channels:   signal.DefaultFormat.Channels,
		},
		Output: OutputConfig{
			Driver:     DriverNull,
			BitDepth:   int(signal.BitDepth16),
			PeriodSize: 512,
			Periods:    2,
			RingFrames: 8192,
		},
		Recorder: RecorderConfig{
			Format:   FormatWav,
			BitDepth: int(signal.BitDepth16),
			BitRate:  192,
			Quality:  2,
			Queue:    64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the file on top of the default config and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports all invalid values.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field string, v any) {
		errs = append(errs, fmt.Errorf("%s %v: %w", field, v, ErrInvalid))
	}
	if c.Audio.SampleRate <= 0 {
		invalid("audio.sample_rate", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		invalid("audio.block_size", c.Audio.BlockSize)
	}
	if c.Audio.Channels <= 0 {
		invalid("audio.channels", c.Audio.Channels)
	}
	switch c.Output.Driver {
	case DriverNull, DriverWav, DriverOSS, DriverPortaudio, DriverEbiten:
	default:
		invalid("output.driver", c.Output.Driver)
	}
	if c.Output.RingFrames < c.Audio.BlockSize {
		invalid("output.ring_frames", c.Output.RingFrames)
	}
	if err := c.DeviceConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	if c.Recorder.Path != "" {
		switch c.Recorder.Format {
		case FormatWav, FormatMp3:
		default:
			invalid("recorder.format", c.Recorder.Format)
		}
		if c.Recorder.Queue <= 0 {
			invalid("recorder.queue", c.Recorder.Queue)
		}
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		invalid("logging.level", c.Logging.Level)
	}
	for i, n := range c.Nodes {
		if n.Kind == "" {
			invalid(fmt.Sprintf("nodes[%d].kind", i), n.Kind)
		}
	}
	return errors.Join(errs...)
}

// Format returns the audio format of the graph.
func (c *Config) Format() signal.Format {
	return signal.Format{
		Channels:   c.Audio.Channels,
		SampleRate: c.Audio.SampleRate,
		BlockSize:  c.Audio.BlockSize,
	}
}

// DeviceConfig returns the config of the output device.
func (c *Config) DeviceConfig() device.Config {
	return device.Config{
		Device:      c.Output.Device,
		BitDepth:    signal.BitDepth(c.Output.BitDepth),
		Float:       c.Output.Float,
		Channels:    c.Audio.Channels,
		SampleRate:  c.Audio.SampleRate,
		PeriodSize:  c.Output.PeriodSize,
		Periods:     c.Output.Periods,
		Interleaved: true,
	}
}

// Logger returns logger configured by logging section.
func (c *Config) Logger() (*logrus.Logger, error) {
	return log.New(c.Logging.Level, c.Logging.JSON)
}

// Position returns the position of the node.
func (n NodeConfig) Position() graph.Vec2 {
	return graph.Vec2{X: n.X, Y: n.Y}
}

// Apply sets the params of the node. Unknown params are reported.
func (n NodeConfig) Apply(node *graph.Node) error {
	if err := node.SetPosition(n.Position()); err != nil {
		return err
	}
	for name, v := range n.Params {
		p, err := node.Param(name)
		if err != nil {
			return err
		}
		if err := p.Set(v); err != nil {
			return fmt.Errorf("%v: %w", node, err)
		}
	}
	return nil
}
