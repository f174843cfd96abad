// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kapy9250/cli-gateway/cmd/cli-gateway-sys/cli"
	"github.com/kapy9250/cli-gateway/lib/bridgeclient"
)

var version = "devel"

// defaultSocket is where the daemon listens unless overridden by flag
// or the CLI_GATEWAY_SOCKET environment variable.
const defaultSocket = "/run/cli-gateway/bridge.sock"

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	socket  string
	timeout time.Duration
	jsonOut bool
}

func (g *globalOptions) addFlags(flagSet *pflag.FlagSet) {
	socket := defaultSocket
	if env := os.Getenv("CLI_GATEWAY_SOCKET"); env != "" {
		socket = env
	}
	flagSet.StringVar(&g.socket, "socket", socket, "bridge socket path")
	flagSet.DurationVar(&g.timeout, "timeout", 30*time.Second, "response timeout")
	flagSet.BoolVar(&g.jsonOut, "json", false, "output as JSON")
}

func (g *globalOptions) client() *bridgeclient.Client {
	return bridgeclient.New(g.socket, g.timeout)
}

func (g *globalOptions) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout+5*time.Second)
}

func main() {
	if err := root().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func root() *cli.Command {
	return &cli.Command{
		Name:    "cli-gateway-sys",
		Summary: "operator CLI for the gateway bridge",
		Description: "cli-gateway-sys talks to the cli-gateway-system daemon over its\n" +
			"Unix socket: enroll a TOTP authenticator, plan privileged actions,\n" +
			"approve them with a code, and execute them with the minted grant.",
		Subcommands: []*cli.Command{
			statusCommand(),
			enrollCommand(),
			planCommand(),
			approveCommand(),
			challengeCommand(),
			callCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print the CLI version",
		Run: func(args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
