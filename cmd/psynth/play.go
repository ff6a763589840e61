package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type playCommand struct {
	config   string
	duration time.Duration
	paths    stringList
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play the configured layout through the output device"
}

func (cmd *playCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.config, "config", "", "path to yaml config")
	fs.DurationVar(&cmd.duration, "duration", 0, "stop after duration, zero plays until interrupted")
	fs.Var(&cmd.paths, "path", "semicolon separated list of sample search paths")
}

func (cmd *playCommand) Run() error {
	cfg, err := loadConfig(cmd.config)
	if err != nil {
		return err
	}
	e, err := newEngine(cfg, cmd.paths)
	if err != nil {
		return err
	}
	dev, closeDevice, err := openDevice(e.ctx.Logger("device"), cfg)
	if err != nil {
		return errors.Join(err, e.close())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cmd.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.duration)
		defer cancel()
	}

	err = e.run(dev, ctx.Done())
	return errors.Join(err, closeDevice(), e.close())
}
