// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kapy9250/cli-gateway/lib/clock"
)

// CompressionTag identifies the algorithm applied to rotated audit
// files.
type CompressionTag uint8

const (
	// CompressionNone keeps rotated files as plain JSONL.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is the fast option for high-volume trails.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is the default: audit JSONL is highly
	// repetitive and compresses well.
	CompressionZstd CompressionTag = 2
)

// String returns the configuration name of the tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a configuration name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// ParseRecipients parses age X25519 public keys from configuration.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("audit: recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// FileSink appends events as JSONL to a 0600 file and rotates it by
// size. Rotated files are compressed and, when recipients are
// configured, encrypted to them — the daemon holds only public keys,
// so a compromised host cannot read back its own archived trail.
// Archival failures degrade: the plain rotated file stays on disk and
// the live trail keeps going.
//
// FileSink is not safe for concurrent use on its own; the Recorder
// serializes access.
type FileSink struct {
	path        string
	maxBytes    int64
	compression CompressionTag
	recipients  []age.Recipient
	clock       clock.Clock
	logger      *slog.Logger

	file *os.File
	size int64
}

// NewFileSink opens (or creates) the audit file.
func NewFileSink(path string, maxBytes int64, compression CompressionTag, recipients []age.Recipient, clk clock.Clock, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: stat %s: %w", path, err)
	}

	return &FileSink{
		path:        path,
		maxBytes:    maxBytes,
		compression: compression,
		recipients:  recipients,
		clock:       clk,
		logger:      logger,
		file:        file,
		size:        info.Size(),
	}, nil
}

// Record appends one event and rotates if the file crossed the size
// threshold.
func (s *FileSink) Record(_ context.Context, event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encoding event: %w", err)
	}
	line = append(line, '\n')

	n, err := s.file.Write(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("audit: writing event: %w", err)
	}

	if s.maxBytes > 0 && s.size >= s.maxBytes {
		s.rotate()
	}
	return nil
}

// Close closes the live file.
func (s *FileSink) Close() error {
	return s.file.Close()
}

// rotate renames the live file aside and starts a fresh one, then
// archives the rotated file. Any failure here is logged and absorbed;
// the worst outcome is an oversized or uncompressed file, never a
// lost event.
func (s *FileSink) rotate() {
	rotated := fmt.Sprintf("%s.%s", s.path, s.clock.Now().UTC().Format("20060102T150405Z"))

	if err := s.file.Close(); err != nil {
		s.logger.Error("audit rotation: closing live file", slog.String("error", err.Error()))
	}
	if err := os.Rename(s.path, rotated); err != nil {
		s.logger.Error("audit rotation: rename failed", slog.String("error", err.Error()))
		// Reopen the original and carry on appending to it.
		rotated = ""
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		s.logger.Error("audit rotation: reopen failed", slog.String("error", err.Error()))
		return
	}
	s.file = file
	if info, err := file.Stat(); err == nil {
		s.size = info.Size()
	} else {
		s.size = 0
	}

	if rotated != "" {
		if err := s.archive(rotated); err != nil {
			s.logger.Error("audit rotation: archival failed, keeping plain file",
				slog.String("file", rotated),
				slog.String("error", err.Error()))
		}
	}
}

// archive compresses and/or encrypts a rotated file, removing the
// plain original only on full success.
func (s *FileSink) archive(path string) error {
	if s.compression == CompressionNone && len(s.recipients) == 0 {
		return nil
	}

	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target := path
	switch s.compression {
	case CompressionLZ4:
		target += ".lz4"
	case CompressionZstd:
		target += ".zst"
	}
	if len(s.recipients) > 0 {
		target += ".age"
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	// Build the writer chain outermost first: file ← age ← compressor.
	var sink io.WriteCloser = out
	closers := []io.Closer{out}

	if len(s.recipients) > 0 {
		encrypted, err := age.Encrypt(sink, s.recipients...)
		if err != nil {
			closeAll(closers)
			os.Remove(target)
			return err
		}
		sink = encrypted
		closers = append([]io.Closer{encrypted}, closers...)
	}

	switch s.compression {
	case CompressionLZ4:
		compressor := lz4.NewWriter(sink)
		sink = compressor
		closers = append([]io.Closer{compressor}, closers...)
	case CompressionZstd:
		compressor, err := zstd.NewWriter(sink)
		if err != nil {
			closeAll(closers)
			os.Remove(target)
			return err
		}
		sink = compressor
		closers = append([]io.Closer{compressor}, closers...)
	}

	if _, err := io.Copy(sink, source); err != nil {
		closeAll(closers)
		os.Remove(target)
		return err
	}
	if err := closeAll(closers); err != nil {
		os.Remove(target)
		return err
	}

	return os.Remove(path)
}

func closeAll(closers []io.Closer) error {
	var first error
	for _, closer := range closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
