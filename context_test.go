package psynth_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/psychosynth/psynth"
	"github.com/psychosynth/psynth/log"
)

func TestContextFind(t *testing.T) {
	dir := t.TempDir()
	name := "sample.wav"
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte{}, 0o644))

	ctx := psynth.NewContext(log.Discard(), t.TempDir(), dir)
	tests := []struct {
		name     string
		expected string
		err      error
	}{
		{name: name, expected: path},
		{name: path, expected: path},
		{name: "missing.wav", err: psynth.ErrNotFound},
		{name: filepath.Join(t.TempDir(), name), err: psynth.ErrNotFound},
	}
	for _, test := range tests {
		found, err := ctx.Find(test.name)
		if test.err != nil {
			assert.True(t, errors.Is(err, test.err))
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, test.expected, found)
	}
}

func TestContextLogger(t *testing.T) {
	ctx := psynth.NewContext(log.Discard())
	assert.NotNil(t, ctx.Logger("processor"))
}
