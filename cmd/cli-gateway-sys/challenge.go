// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kapy9250/cli-gateway/cmd/cli-gateway-sys/cli"
	"github.com/kapy9250/cli-gateway/lib/action"
)

func planCommand() *cli.Command {
	var global globalOptions
	var paramFlags []string
	var paramsFile string
	var summary string
	return &cli.Command{
		Name:    "plan",
		Summary: "open an approval challenge for an action",
		Usage:   "cli-gateway-sys plan <action-type> [flags]",
		Description: "Builds the action descriptor, opens a challenge bound to its\n" +
			"fingerprint, and prints the challenge id. The descriptor passed to\n" +
			"'call' later must match exactly, parameter for parameter.",
		Examples: []cli.Example{
			{Description: "plan a config write", Command: `cli-gateway-sys plan config_write --param path=/etc/app.conf --param content="mode=prod"`},
			{Description: "plan from a params file", Command: "cli-gateway-sys plan docker_exec --params-file restart.jsonc"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			global.addFlags(flagSet)
			flagSet.StringArrayVar(&paramFlags, "param", nil, "action parameter as key=value (repeatable)")
			flagSet.StringVar(&paramsFile, "params-file", "", "JSONC file of action parameters")
			flagSet.StringVar(&summary, "summary", "", "human-readable summary shown at approval")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("plan takes exactly one action type, got %d arguments", len(args))
			}
			params, err := parseParams(paramFlags, paramsFile)
			if err != nil {
				return err
			}
			descriptor := action.Descriptor{Type: args[0], Params: params}

			ctx, cancel := global.context()
			defer cancel()

			created, err := global.client().ChallengeCreate(ctx, descriptor, summary)
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(created)
			}

			fmt.Printf("challenge:   %s\n", created.ChallengeID)
			fmt.Printf("fingerprint: %s\n", created.Fingerprint)
			fmt.Printf("summary:     %s\n", created.Summary)
			fmt.Printf("expires:     %s\n", created.ExpiresAt)
			fmt.Println("\nApprove with:")
			fmt.Printf("  cli-gateway-sys approve %s\n", created.ChallengeID)
			return nil
		},
	}
}

func approveCommand() *cli.Command {
	var global globalOptions
	var code string
	return &cli.Command{
		Name:    "approve",
		Summary: "approve a challenge with a TOTP code",
		Usage:   "cli-gateway-sys approve <challenge-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("approve", pflag.ContinueOnError)
			global.addFlags(flagSet)
			flagSet.StringVar(&code, "code", "", "TOTP code (prompted when omitted)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("approve takes exactly one challenge id, got %d arguments", len(args))
			}
			value, err := readCode(code)
			if err != nil {
				return err
			}

			ctx, cancel := global.context()
			defer cancel()

			approved, err := global.client().ChallengeApprove(ctx, args[0], value)
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(approved)
			}

			fmt.Printf("grant:   %s\n", approved.Grant)
			fmt.Printf("expires: %s\n", approved.ExpiresAt)
			fmt.Println("\nExecute with:")
			fmt.Printf("  cli-gateway-sys call <action-type> ... --grant %s\n", approved.Grant)
			return nil
		},
	}
}

func challengeCommand() *cli.Command {
	var global globalOptions
	return &cli.Command{
		Name:    "challenge",
		Summary: "show a challenge's state",
		Usage:   "cli-gateway-sys challenge <challenge-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("challenge", pflag.ContinueOnError)
			global.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("challenge takes exactly one challenge id, got %d arguments", len(args))
			}

			ctx, cancel := global.context()
			defer cancel()

			status, err := global.client().ChallengeStatus(ctx, args[0])
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(status)
			}

			fmt.Printf("challenge:   %s\n", status.ChallengeID)
			fmt.Printf("state:       %s\n", status.State)
			fmt.Printf("fingerprint: %s\n", status.Fingerprint)
			fmt.Printf("summary:     %s\n", status.Summary)
			fmt.Printf("attempts:    %d\n", status.Attempts)
			fmt.Printf("expires:     %s\n", status.ExpiresAt)
			return nil
		},
	}
}
