// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/kapy9250/cli-gateway/cmd/cli-gateway-sys/cli"
)

func statusCommand() *cli.Command {
	var global globalOptions
	return &cli.Command{
		Name:    "status",
		Summary: "show daemon status and the caller's enrollment state",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			global.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			ctx, cancel := global.context()
			defer cancel()

			status, err := global.client().Status(ctx)
			if err != nil {
				return err
			}
			if global.jsonOut {
				return writeJSON(status)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "version:\t%s\n", status.Version)
			fmt.Fprintf(tw, "uptime:\t%ds\n", status.UptimeSeconds)
			fmt.Fprintf(tw, "max request bytes:\t%d\n", status.Limits.MaxRequestBytes)
			fmt.Fprintf(tw, "request timeout:\t%ds\n", status.Limits.RequestTimeoutSeconds)
			fmt.Fprintf(tw, "owner allowlist:\t%s (%d entries)\n",
				enforcement(status.Policy.EnforceOwnerAllowlist), status.Policy.AllowedOwners)
			fmt.Fprintf(tw, "unit allowlist:\t%s (%d entries)\n",
				enforcement(status.Policy.EnforceUnitAllowlist), status.Policy.AllowedUnits)
			fmt.Fprintf(tw, "grants for all ops:\t%t\n", status.Policy.RequireGrantForAllOps)
			fmt.Fprintf(tw, "enrolled:\t%t\n", status.Enrollment.Configured)
			if status.Enrollment.Pending {
				fmt.Fprintf(tw, "pending enrollment until:\t%s\n", status.Enrollment.PendingExpiresAt)
			}
			fmt.Fprintf(tw, "pending challenges:\t%d\n", status.PendingChallenges)
			fmt.Fprintf(tw, "outstanding grants:\t%d\n", status.OutstandingGrants)
			if status.AuditDropped > 0 {
				fmt.Fprintf(tw, "audit events dropped:\t%d\n", status.AuditDropped)
			}
			return tw.Flush()
		},
	}
}

func enforcement(enforced bool) string {
	if enforced {
		return "enforced"
	}
	return "disabled"
}
