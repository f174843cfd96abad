// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses the schedule syntax accepted in /etc/cron.d
// entries and computes next occurrences.
//
// Supported syntax:
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31)
//	│ │ │ ┌───────────── month (1-12)
//	│ │ │ │ ┌───────────── day of week (0-7, 0 and 7 = Sunday)
//	│ │ │ │ │
//	* * * * *
//
// Each field supports single values, ranges (1-5), lists (1,3,5),
// steps (*/15, 1-30/5), and the wildcard. The @reboot/@hourly/@daily/
// @weekly/@monthly/@yearly shorthands that cron.d accepts validate
// too; all but @reboot expand to their five-field equivalents. Named
// days and months are not supported. All computation is UTC.
//
// The package exists to validate schedules before they are written
// into cron.d files, so a bad expression is rejected at the gateway
// instead of silently never firing on the host.
package cron
