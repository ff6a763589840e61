package log_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/psychosynth/psynth/log"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level    string
		json     bool
		expected logrus.Level
		err      bool
	}{
		{level: "", expected: log.GetLogger().GetLevel()},
		{level: "debug", expected: logrus.DebugLevel},
		{level: "warn", json: true, expected: logrus.WarnLevel},
		{level: "loud", err: true},
	}
	for _, test := range tests {
		l, err := log.New(test.level, test.json)
		if test.err {
			assert.NotNil(t, err)
			continue
		}
		assert.Nil(t, err)
		assert.Equal(t, test.expected, l.GetLevel())
		if test.json {
			assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
		}
	}
}
