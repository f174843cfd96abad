// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package peercred

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrResolution is wrapped by every error Resolve returns. Callers
// that only need to distinguish "could not resolve the peer" from
// other failures match with errors.Is.
var ErrResolution = errors.New("peercred: peer resolution failed")

// Ucred is the kernel-reported credential of the peer process at
// connection time.
type Ucred struct {
	UID uint32
	GID uint32
	PID int32
}

// Identity is the resolved identity of a connection's peer. Resolved
// once per connection and immutable afterwards.
type Identity struct {
	// OwnerID is the peer's numeric uid rendered as a decimal
	// string. This is the value matched against the owner allowlist
	// and used as the key for enrollments, challenges, and grants.
	OwnerID string

	// UID and PID are the raw kernel credentials, carried for audit
	// events and logs.
	UID uint32
	PID int32

	// Units are the systemd units resolved from the peer's cgroup
	// membership, sorted and deduplicated. An empty slice means no
	// unit could be resolved — policy treats that as "unit unknown",
	// never as a match.
	Units []string
}

// UnitStrategy extracts systemd unit names from one line of a
// /proc/<pid>/cgroup file. Returns nil when the line is not in the
// format the strategy understands; strategies never report errors
// because a line one strategy cannot parse may be exactly the format
// another one handles.
type UnitStrategy func(line string) []string

// Resolver derives a peer Identity from a Unix socket connection.
type Resolver struct {
	// ProcRoot is the procfs mount point, "/proc" in production.
	// Tests point it at a fixture directory.
	ProcRoot string

	// Strategies are tried against every cgroup line. Defaults to
	// cgroup v2 and the cgroup v1 systemd controller.
	Strategies []UnitStrategy
}

// NewResolver returns a Resolver with the production defaults.
func NewResolver() *Resolver {
	return &Resolver{
		ProcRoot:   "/proc",
		Strategies: []UnitStrategy{CgroupV2Units, CgroupV1SystemdUnits},
	}
}

// Credentials reads the peer's kernel credentials from the
// connection. Fails if the connection is not a Unix socket or the
// getsockopt syscall fails.
func Credentials(conn net.Conn) (Ucred, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Ucred{}, fmt.Errorf("%w: connection is %T, not a unix socket", ErrResolution, conn)
	}

	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return Ucred{}, fmt.Errorf("%w: accessing raw connection: %v", ErrResolution, err)
	}

	var cred *unix.Ucred
	var sockoptErr error
	controlErr := rawConn.Control(func(fd uintptr) {
		cred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return Ucred{}, fmt.Errorf("%w: raw connection control: %v", ErrResolution, controlErr)
	}
	if sockoptErr != nil {
		return Ucred{}, fmt.Errorf("%w: SO_PEERCRED: %v", ErrResolution, sockoptErr)
	}

	return Ucred{UID: cred.Uid, GID: cred.Gid, PID: cred.Pid}, nil
}

// Resolve derives the peer Identity for a connection: kernel
// credentials plus best-effort systemd unit resolution. A failure to
// read or parse the cgroup file is not an error — the identity comes
// back with no units and policy fails closed from there.
func (r *Resolver) Resolve(conn net.Conn) (Identity, error) {
	cred, err := Credentials(conn)
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		OwnerID: strconv.FormatUint(uint64(cred.UID), 10),
		UID:     cred.UID,
		PID:     cred.PID,
		Units:   r.unitsForPID(cred.PID),
	}, nil
}

// unitsForPID reads /proc/<pid>/cgroup and applies every strategy to
// every line. The result is sorted and deduplicated; unreadable files
// yield nil.
func (r *Resolver) unitsForPID(pid int32) []string {
	data, err := os.ReadFile(filepath.Join(r.ProcRoot, strconv.FormatInt(int64(pid), 10), "cgroup"))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, strategy := range r.Strategies {
			for _, unit := range strategy(line) {
				seen[unit] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	units := make([]string, 0, len(seen))
	for unit := range seen {
		units = append(units, unit)
	}
	sort.Strings(units)
	return units
}

// CgroupV2Units parses a cgroup v2 line:
//
//	0::/system.slice/system-foo.slice/foo@bar.service
//
// The hierarchy id must be 0 and the controller list empty — that is
// the unified hierarchy's signature. Unit names are the path segments
// ending in ".service" or ".scope"; slice segments are containers,
// not units.
func CgroupV2Units(line string) []string {
	fields := strings.SplitN(line, ":", 3)
	if len(fields) != 3 || fields[0] != "0" || fields[1] != "" {
		return nil
	}
	return unitsFromCgroupPath(fields[2])
}

// CgroupV1SystemdUnits parses a cgroup v1 line for the named systemd
// controller:
//
//	1:name=systemd:/system.slice/foo.service
func CgroupV1SystemdUnits(line string) []string {
	fields := strings.SplitN(line, ":", 3)
	if len(fields) != 3 || fields[1] != "name=systemd" {
		return nil
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return nil
	}
	return unitsFromCgroupPath(fields[2])
}

// unitSuffixes are the cgroup path segment suffixes that denote a
// systemd unit (as opposed to a slice, which is a grouping node).
var unitSuffixes = []string{".service", ".scope"}

func unitsFromCgroupPath(path string) []string {
	var units []string
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		segment = unescapeUnit(segment)
		for _, suffix := range unitSuffixes {
			if strings.HasSuffix(segment, suffix) && len(segment) > len(suffix) {
				units = append(units, segment)
				break
			}
		}
	}
	return units
}

// unescapeUnit reverses systemd's cgroup escaping: `\xNN` sequences
// encode bytes that are special in unit names (most commonly `\x2d`
// for "-"). Malformed escapes are left as-is rather than dropped —
// the resulting name simply will not match any allowlisted unit.
func unescapeUnit(segment string) string {
	if !strings.Contains(segment, `\x`) {
		return segment
	}

	var out strings.Builder
	out.Grow(len(segment))
	for i := 0; i < len(segment); {
		if segment[i] == '\\' && i+3 < len(segment) && segment[i+1] == 'x' {
			if value, err := strconv.ParseUint(segment[i+2:i+4], 16, 8); err == nil {
				out.WriteByte(byte(value))
				i += 4
				continue
			}
		}
		out.WriteByte(segment[i])
		i++
	}
	return out.String()
}
