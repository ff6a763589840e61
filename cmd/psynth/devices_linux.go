package main

import (
	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/device/oss"
)

func openOSS(log logrus.FieldLogger, dc device.Config) (device.Output, func() error, error) {
	b, err := oss.New(dc)
	if err != nil {
		return nil, nil, err
	}
	t := device.NewThread(log, dc, b)
	return t, t.Close, nil
}
