package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychosynth/psynth/config"
	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/graph"
	"github.com/psychosynth/psynth/mock"
	"github.com/psychosynth/psynth/signal"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "psynth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := write(t, `
audio:
  sample_rate: 48000
  block_size: 128
output:
  driver: wav
  device: out.wav
  period_size: 256
recorder:
  path: rec.mp3
  format: mp3
paths:
  - samples
logging:
  level: debug
  json: true
nodes:
  - kind: oscillator
    x: 1
    y: -0.5
    params:
      frequency: 440
      wave: 2
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, signal.Format{Channels: 2, SampleRate: 48000, BlockSize: 128}, cfg.Format())
	assert.Equal(t, device.Config{
		Device:      "out.wav",
		BitDepth:    signal.BitDepth16,
		Channels:    2,
		SampleRate:  48000,
		PeriodSize:  256,
		Periods:     2,
		Interleaved: true,
	}, cfg.DeviceConfig())
	assert.Equal(t, config.FormatMp3, cfg.Recorder.Format)
	assert.Equal(t, 192, cfg.Recorder.BitRate)
	assert.Equal(t, []string{"samples"}, cfg.Paths)
	require.Len(t, cfg.Nodes, 1)
	assert.Equal(t, graph.Vec2{X: 1, Y: -0.5}, cfg.Nodes[0].Position())

	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.Equal(t, "debug", l.GetLevel().String())
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = config.Load(write(t, "audio: ["))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		valid  bool
	}{
		{name: "default", modify: func(*config.Config) {}, valid: true},
		{name: "sample rate", modify: func(c *config.Config) { c.Audio.SampleRate = 0 }},
		{name: "block size", modify: func(c *config.Config) { c.Audio.BlockSize = -1 }},
		{name: "driver", modify: func(c *config.Config) { c.Output.Driver = "alsa" }},
		{name: "ring", modify: func(c *config.Config) { c.Output.RingFrames = 1 }},
		{name: "bit depth", modify: func(c *config.Config) { c.Output.BitDepth = 12 }},
		{name: "float", modify: func(c *config.Config) { c.Output.BitDepth, c.Output.Float = 0, true }, valid: true},
		{name: "level", modify: func(c *config.Config) { c.Logging.Level = "loud" }},
		{name: "node kind", modify: func(c *config.Config) { c.Nodes = []config.NodeConfig{{}} }},
		{
			name: "recorder format",
			modify: func(c *config.Config) {
				c.Recorder.Path = "out.ogg"
				c.Recorder.Format = "ogg"
			},
		},
	}
	for _, test := range tests {
		cfg := config.Default()
		test.modify(cfg)
		err := cfg.Validate()
		if test.valid {
			assert.NoError(t, err, test.name)
			continue
		}
		assert.Error(t, err, test.name)
		if test.name == "bit depth" {
			var paramErr *device.ParamError
			assert.True(t, errors.As(err, &paramErr))
		} else {
			assert.True(t, errors.Is(err, config.ErrInvalid), test.name)
		}
	}
}

func TestApply(t *testing.T) {
	n, _ := mock.NewSource(signal.DefaultFormat, 1)
	require.NoError(t, n.Register(
		graph.NewParam("frequency", graph.Float, 220.0),
		graph.NewParam("wave", graph.Int, 0),
	))
	nc := config.NodeConfig{
		Kind: "mock",
		X:    2,
		Y:    3,
		Params: map[string]any{
			"frequency": 440,
			"wave":      1,
		},
	}
	require.NoError(t, nc.Apply(n))
	assert.Equal(t, graph.Vec2{X: 2, Y: 3}, n.Position())
	p, err := n.Param("frequency")
	require.NoError(t, err)
	assert.Equal(t, 440.0, p.Float())
	p, err = n.Param("wave")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Int())

	nc.Params = map[string]any{"missing": 1}
	assert.Error(t, nc.Apply(n))
	nc.Params = map[string]any{"wave": "square"}
	assert.Error(t, nc.Apply(n))
}
