// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kapy9250/cli-gateway/cmd/cli-gateway-sys/cli"
)

func enrollCommand() *cli.Command {
	// Bare "enroll" starts an enrollment, same as "enroll begin".
	begin := enrollBeginCommand()
	return &cli.Command{
		Name:    "enroll",
		Summary: "manage TOTP enrollment",
		Usage:   "cli-gateway-sys enroll [command] [flags]",
		Flags:   begin.Flags,
		Run:     begin.Run,
		Subcommands: []*cli.Command{
			begin,
			enrollConfirmCommand(),
			enrollCancelCommand(),
			enrollStatusCommand(),
		},
	}
}

func enrollBeginCommand() *cli.Command {
	var global globalOptions
	var account string
	var force bool
	return &cli.Command{
		Name:    "begin",
		Summary: "start an enrollment and print the provisioning secret",
		Description: "Starts a TOTP enrollment. The printed secret and otpauth URI go\n" +
			"into an authenticator app; confirm with 'enroll confirm' before the\n" +
			"enrollment expires. Re-running resumes the pending enrollment\n" +
			"unless --force replaces it.",
		Examples: []cli.Example{
			{Description: "enroll with a recognizable account label", Command: "cli-gateway-sys enroll begin --account ops@host1"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("begin", pflag.ContinueOnError)
			global.addFlags(flagSet)
			flagSet.StringVar(&account, "account", "", "account label in the provisioning URI")
			flagSet.BoolVar(&force, "force", false, "replace any pending enrollment")
			return flagSet
		},
		Run: func(args []string) error {
			ctx, cancel := global.context()
			defer cancel()

			enrollment, err := global.client().EnrollBegin(ctx, account, force)
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(enrollment)
			}

			if enrollment.Reused {
				fmt.Println("resuming pending enrollment")
			}
			fmt.Printf("secret:  %s\n", enrollment.Secret)
			fmt.Printf("uri:     %s\n", enrollment.URI)
			fmt.Printf("account: %s\n", enrollment.Account)
			fmt.Printf("expires: %s\n", enrollment.ExpiresAt)
			fmt.Println("\nAdd the secret to an authenticator app, then run:")
			fmt.Println("  cli-gateway-sys enroll confirm")
			return nil
		},
	}
}

func enrollConfirmCommand() *cli.Command {
	var global globalOptions
	var code string
	return &cli.Command{
		Name:    "confirm",
		Summary: "confirm the pending enrollment with a code",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("confirm", pflag.ContinueOnError)
			global.addFlags(flagSet)
			flagSet.StringVar(&code, "code", "", "TOTP code (prompted when omitted)")
			return flagSet
		},
		Run: func(args []string) error {
			value, err := readCode(code)
			if err != nil {
				return err
			}

			ctx, cancel := global.context()
			defer cancel()

			status, err := global.client().EnrollConfirm(ctx, value)
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(status)
			}
			fmt.Println("enrollment confirmed")
			return nil
		},
	}
}

func enrollCancelCommand() *cli.Command {
	var global globalOptions
	return &cli.Command{
		Name:    "cancel",
		Summary: "drop the pending enrollment",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("cancel", pflag.ContinueOnError)
			global.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			ctx, cancel := global.context()
			defer cancel()

			status, err := global.client().EnrollCancel(ctx)
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(status)
			}
			fmt.Println("pending enrollment canceled")
			return nil
		},
	}
}

func enrollStatusCommand() *cli.Command {
	var global globalOptions
	return &cli.Command{
		Name:    "status",
		Summary: "show the caller's enrollment state",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			global.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			ctx, cancel := global.context()
			defer cancel()

			status, err := global.client().EnrollStatus(ctx)
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(status)
			}
			fmt.Printf("enrolled: %t\n", status.Configured)
			if status.Pending {
				fmt.Printf("pending enrollment expires: %s\n", status.PendingExpiresAt)
			}
			return nil
		},
	}
}
