// main.go: Entrypoint of the proteus command line tool.
//
// proteus enrolls noisy readings (biometric templates, PUF responses) into
// public helper data and later reproduces the same key from a fresh reading.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	glog "github.com/golang/glog"
	"github.com/google/subcommands"
)

const (
	// The default name for the proteus configuration file.
	defaultConfigName string = "proteus.yaml"

	// The current version, displayed via the `version` subcommand.
	proteusVersion string = "1.0.0"
)

// versionCmd handles CLI options for the version command.
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: proteus version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("proteus version %s\n", proteusVersion)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	if err := loadDotEnv(".env"); err != nil {
		glog.Exitf("Failed to load environment: %v", err)
	}

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&paramsCmd{out: os.Stdout}, "")
	subcommands.Register(&enrollCmd{out: os.Stdout}, "")
	subcommands.Register(&reproduceCmd{out: os.Stdout}, "")
	subcommands.Register(&sealCmd{}, "data")
	subcommands.Register(&openCmd{}, "data")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	status := subcommands.Execute(ctx)
	glog.Flush()
	os.Exit(int(status))
}
