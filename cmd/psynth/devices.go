package main

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/psychosynth/psynth/config"
	"github.com/psychosynth/psynth/device"
	"github.com/psychosynth/psynth/device/ebiten"
	"github.com/psychosynth/psynth/device/portaudio"
	"github.com/psychosynth/psynth/device/wav"
)

var errUnsupportedDriver = errors.New("driver is not supported on this platform")

// openDevice opens the configured driver. When it fails, the null device
// is returned in its place so the graph still runs.
func openDevice(log logrus.FieldLogger, cfg *config.Config) (device.Output, func() error, error) {
	dc := cfg.DeviceConfig()
	dev, closer, err := openDriver(log, cfg.Output.Driver, dc)
	if err == nil {
		return dev, closer, nil
	}
	log.WithError(err).WithField("driver", cfg.Output.Driver).Warn("falling back to null device")
	null, nerr := device.NewNull(log, dc)
	if nerr != nil {
		return nil, nil, errors.Join(err, nerr)
	}
	return null, null.Close, nil
}

func openDriver(log logrus.FieldLogger, driver string, dc device.Config) (device.Output, func() error, error) {
	switch driver {
	case config.DriverWav:
		b, err := wav.NewBackend(dc)
		if err != nil {
			return nil, nil, err
		}
		t := device.NewThread(log, dc, b)
		return t, t.Close, nil
	case config.DriverOSS:
		return openOSS(log, dc)
	case config.DriverPortaudio:
		b, err := portaudio.New(dc)
		if err != nil {
			return nil, nil, err
		}
		t := device.NewThread(log, dc, b)
		return t, t.Close, nil
	case config.DriverEbiten:
		o, err := ebiten.New(dc)
		if err != nil {
			return nil, nil, err
		}
		return o, nopClose, nil
	default:
		t, err := device.NewNull(log, dc)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	}
}

func nopClose() error {
	return nil
}
