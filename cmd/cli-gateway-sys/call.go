// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kapy9250/cli-gateway/cmd/cli-gateway-sys/cli"
	"github.com/kapy9250/cli-gateway/lib/action"
)

func callCommand() *cli.Command {
	var global globalOptions
	var paramFlags []string
	var paramsFile string
	var grantToken string
	return &cli.Command{
		Name:    "call",
		Summary: "execute an action",
		Usage:   "cli-gateway-sys call <action-type> [flags]",
		Description: "Executes an action through the bridge. Public actions run on\n" +
			"identity alone; protected ones need a grant from 'approve', and the\n" +
			"descriptor must match the planned one exactly.",
		Examples: []cli.Example{
			{Description: "tail a service's journal", Command: "cli-gateway-sys call journal --param unit=nginx.service --param lines=50"},
			{Description: "execute an approved write", Command: "cli-gateway-sys call config_write --param path=/etc/app.conf --param content=... --grant <token>"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
			global.addFlags(flagSet)
			flagSet.StringArrayVar(&paramFlags, "param", nil, "action parameter as key=value (repeatable)")
			flagSet.StringVar(&paramsFile, "params-file", "", "JSONC file of action parameters")
			flagSet.StringVar(&grantToken, "grant", "", "grant token for protected actions")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("call takes exactly one action type, got %d arguments", len(args))
			}
			params, err := parseParams(paramFlags, paramsFile)
			if err != nil {
				return err
			}
			descriptor := action.Descriptor{Type: args[0], Params: params}

			ctx, cancel := global.context()
			defer cancel()

			var result map[string]any
			if err := global.client().Execute(ctx, descriptor, grantToken, &result); err != nil {
				return err
			}
			// Action payloads are heterogeneous; JSON is the one
			// rendering that fits them all.
			return writeJSON(result)
		},
	}
}
