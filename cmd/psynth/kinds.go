package main

import (
	"flag"
	"fmt"

	"github.com/psychosynth/psynth/node"
)

type kindsCommand struct{}

func (cmd *kindsCommand) Name() string {
	return "kinds"
}

func (cmd *kindsCommand) Help() string {
	return "Show the list of available node kinds"
}

func (cmd *kindsCommand) Register(fs *flag.FlagSet) {}

func (cmd *kindsCommand) Run() error {
	fmt.Println("Available node kinds:")
	for _, kind := range node.Standard().Kinds() {
		fmt.Printf("\t%s\n", kind)
	}
	return nil
}
