package wav_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/device/wav"
	"github.com/psychosynth/psynth/signal"
)

func sine(channels, size int) signal.Float64 {
	s := signal.EmptyFloat64(channels, size)
	for c := range s {
		for i := range s[c] {
			s[c][i] = float64(i%50)/50 - 0.5
		}
	}
	return s
}

func TestWriteRead(t *testing.T) {
	tests := []struct {
		bitDepth signal.BitDepth
		channels int
		delta    float64
	}{
		{bitDepth: signal.BitDepth16, channels: 2, delta: 1e-4},
		{bitDepth: signal.BitDepth16, channels: 1, delta: 1e-4},
		{bitDepth: signal.BitDepth32, channels: 2, delta: 1e-8},
	}
	for _, test := range tests {
		path := filepath.Join(t.TempDir(), "out.wav")
		w, err := wav.NewWriter(path, test.bitDepth, 44100, test.channels)
		assert.Nil(t, err)
		data := sine(test.channels, 300)
		assert.Nil(t, w.Write(data.Slice(0, 100)))
		assert.Nil(t, w.Write(data.Slice(100, 200)))
		assert.Nil(t, w.Close())

		result, sampleRate, err := wav.Read(path)
		assert.Nil(t, err)
		assert.Equal(t, 44100, sampleRate)
		assert.Equal(t, test.channels, result.NumChannels())
		assert.Equal(t, 300, result.Size())
		for c := range data {
			assert.InDeltaSlice(t, data[c], result[c], test.delta)
		}
	}
}

func TestErrors(t *testing.T) {
	_, err := wav.NewWriter(filepath.Join(t.TempDir(), "out.wav"), signal.BitDepth8, 44100, 2)
	assert.Equal(t, wav.ErrUnsupportedBitDepth, err)

	_, _, err = wav.Read(filepath.Join(t.TempDir(), "missing.wav"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	path := filepath.Join(t.TempDir(), "invalid.wav")
	assert.Nil(t, os.WriteFile(path, []byte("not a wav file at all"), 0o644))
	_, _, err = wav.Read(path)
	assert.True(t, errors.Is(err, wav.ErrInvalidFile))

	cfg := device.Config{
		Device:     filepath.Join(t.TempDir(), "missing", "out.wav"),
		BitDepth:   signal.BitDepth16,
		Channels:   2,
		SampleRate: 44100,
		PeriodSize: 64,
		Periods:    2,
	}
	_, err = wav.NewBackend(cfg)
	var openErr *device.OpenError
	assert.True(t, errors.As(err, &openErr))

	cfg.Device = filepath.Join(t.TempDir(), "out.wav")
	cfg.BitDepth = signal.BitDepth24
	_, err = wav.NewBackend(cfg)
	var paramErr *device.ParamError
	assert.True(t, errors.As(err, &paramErr))
}

func TestBackend(t *testing.T) {
	defer goleak.VerifyNone(t)
	log, _ := logtest.NewNullLogger()
	cfg := device.Config{
		Device:     filepath.Join(t.TempDir(), "render.wav"),
		BitDepth:   signal.BitDepth16,
		Channels:   2,
		SampleRate: 44100,
		PeriodSize: 64,
		Periods:    2,
	}
	backend, err := wav.NewBackend(cfg)
	assert.Nil(t, err)
	th := device.NewThread(log, cfg, backend)
	done := make(chan struct{})
	calls := 0
	th.SetCallback(func(buf signal.Float64) {
		buf.CopyFrom(sine(2, buf.Size()))
		calls++
		if calls == 10 {
			close(done)
		}
	})
	assert.Nil(t, th.Start())
	<-done
	assert.Nil(t, th.Close())

	result, _, err := wav.Read(cfg.Device)
	assert.Nil(t, err)
	assert.True(t, result.Size() >= 9*cfg.PeriodSize)
	assert.Equal(t, 0, result.Size()%cfg.PeriodSize)
}
