// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// writeJSON prints value as indented JSON on stdout.
func writeJSON(value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

// readCode returns the TOTP code: the flag value when given, a
// no-echo prompt when stdin is a terminal, otherwise one line from
// stdin (for scripted use).
func readCode(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "TOTP code: ")
		code, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading code: %w", err)
		}
		return strings.TrimSpace(string(code)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading code from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
