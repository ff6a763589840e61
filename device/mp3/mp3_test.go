package mp3_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/psychosynth/psynth/device/mp3"
	"github.com/psychosynth/psynth/signal"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp3")
	w, err := mp3.NewWriter(path, 44100, 2, 192, 2)
	assert.Nil(t, err)
	block := signal.EmptyFloat64(2, 1152)
	for c := range block {
		for i := range block[c] {
			block[c][i] = float64(i%100)/100 - 0.5
		}
	}
	blocks := 20
	for i := 0; i < blocks; i++ {
		assert.Nil(t, w.Write(block))
	}
	assert.Nil(t, w.Close())

	info, err := os.Stat(path)
	assert.Nil(t, err)
	assert.True(t, info.Size() > 0)

	result, sampleRate, err := mp3.Read(path)
	assert.Nil(t, err)
	assert.Equal(t, 44100, sampleRate)
	assert.Equal(t, 2, result.NumChannels())
	assert.True(t, result.Size() > 0)
}

func TestReadMissing(t *testing.T) {
	_, _, err := mp3.Read(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.True(t, os.IsNotExist(err))
}
