//go:build !linux

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/device"
)

func openOSS(log logrus.FieldLogger, dc device.Config) (device.Output, func() error, error) {
	return nil, nil, &device.OpenError{Device: dc.Device, Err: errUnsupportedDriver}
}
