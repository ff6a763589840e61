package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychosynth/psynth/config"
	"github.com/psychosynth/psynth/device/wav"
	"github.com/psychosynth/psynth/node"
	"github.com/psychosynth/psynth/signal"
)

func TestCommands(t *testing.T) {
	assert.Len(t, commands, 3)
	names := make(map[string]bool)
	for _, cmd := range commands {
		assert.False(t, names[cmd.Name()], "duplicate command %s", cmd.Name())
		names[cmd.Name()] = true
		assert.NotEmpty(t, cmd.Help())
	}
}

func TestParseArgs(t *testing.T) {
	name, args := parseArgs([]string{"psynth"})
	assert.Empty(t, name)
	assert.Nil(t, args)

	name, args = parseArgs([]string{"psynth", "render", "-out", "a.wav"})
	assert.Equal(t, "render", name)
	assert.Equal(t, []string{"-out", "a.wav"}, args)
}

func TestStringList(t *testing.T) {
	var l stringList
	require.NoError(t, l.Set("a;;b"))
	require.NoError(t, l.Set("c"))
	assert.Equal(t, stringList{"a", "b", "c"}, l)
	assert.Equal(t, "a;b;c", l.String())
}

func TestUnknownCommand(t *testing.T) {
	c := cli{args: []string{"psynth", "unknown"}}
	assert.Equal(t, errorExitCode, c.run())
	c = cli{args: []string{"psynth"}}
	assert.Equal(t, errorExitCode, c.run())
}

const renderConfig = `
audio:
  sample_rate: 44100
  block_size: 64
  channels: 2
output:
  period_size: 256
logging:
  level: error
nodes:
  - kind: oscillator
    x: 0.1
    params:
      frequency: 440
  - kind: output
`

func TestRender(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "psynth.yaml")
	out := filepath.Join(dir, "out.wav")
	require.NoError(t, os.WriteFile(cfgPath, []byte(renderConfig), 0o644))

	c := cli{args: []string{"psynth", "render", "-config", cfgPath, "-out", out, "-duration", "100ms"}}
	require.Equal(t, successExitCode, c.run())

	data, sampleRate, err := wav.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 44100, sampleRate)
	assert.Equal(t, 2, data.NumChannels())
	assert.Equal(t, signal.FramesOf(44100, 100*time.Millisecond), data.Size())

	var peak float64
	for _, v := range data[0] {
		if v > peak {
			peak = v
		}
	}
	assert.Greater(t, peak, 0.0)
}

func TestEngineOutputs(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Nodes = []config.NodeConfig{
		{Kind: node.KindOutput},
		{Kind: node.KindOscillator, X: 0.5},
		{Kind: node.KindOutput, X: 1},
	}
	_, err := newEngine(cfg, nil)
	assert.ErrorIs(t, err, errOutputs)

	// output node is created when layout has none.
	cfg.Nodes = cfg.Nodes[1:2]
	e, err := newEngine(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, e.output)
	assert.Equal(t, 2, e.proc.Root().Len())
	// patcher connects the oscillator, the link is applied by the next block.
	e.proc.RTRequestProcess()
	out := e.proc.Root().Nodes()[1]
	assert.Equal(t, node.KindOutput, out.Kind())
	assert.True(t, out.InAt(0).Connected())
	assert.NoError(t, e.close())
}

func TestRenderNoOutput(t *testing.T) {
	cmd := &renderCommand{}
	assert.ErrorIs(t, cmd.Run(), errNoOutput)
}
