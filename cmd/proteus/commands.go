// commands.go: Subcommands of the proteus command line tool.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	glog "github.com/golang/glog"
	"github.com/google/subcommands"

	"github.com/agilira/proteus"
)

// exitNoMatch is returned when a reading does not reproduce the enrolled key.
const exitNoMatch subcommands.ExitStatus = 3

// configFlags holds the flags shared by every command that builds an extractor.
type configFlags struct {
	configFile string
}

func (c *configFlags) register(f *flag.FlagSet) {
	f.StringVar(&c.configFile, "config-file", defaultConfigName, "Path to a proteus YAML config file. Optional; PROTEUS_* variables override it.")
}

func (c *configFlags) load() (*config, bool) {
	explicit := c.configFile != defaultConfigName
	cfg, err := loadConfig(c.configFile, explicit)
	if err != nil {
		glog.Errorf("Failed to load configuration: %v", err)
		return nil, false
	}
	return cfg, true
}

func (c *configFlags) extractor() (*fuzzy.Extractor, bool) {
	cfg, ok := c.load()
	if !ok {
		return nil, false
	}
	extractor, err := cfg.extractor()
	if err != nil {
		glog.Errorf("Invalid extractor configuration: %v", err)
		return nil, false
	}
	return extractor, true
}

// paramsCmd prints what a configuration costs.
type paramsCmd struct {
	configFlags
	out io.Writer
}

func (*paramsCmd) Name() string     { return "params" }
func (*paramsCmd) Synopsis() string { return "prints the helper count and bundle size for a config" }
func (*paramsCmd) Usage() string {
	return `Usage: proteus params [--config-file=<config_file>]

Example:
  $ PROTEUS_LENGTH=32 PROTEUS_HAMMING_BUDGET=4 proteus params

Flags:
`
}
func (p *paramsCmd) SetFlags(f *flag.FlagSet) { p.register(f) }

func (p *paramsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	extractor, ok := p.extractor()
	if !ok {
		return subcommands.ExitFailure
	}
	h := extractor.BundleHeader()
	fmt.Fprintf(p.out, "length:          %d bytes\n", extractor.Length())
	fmt.Fprintf(p.out, "hamming budget:  %d bits\n", extractor.HammingBudget())
	fmt.Fprintf(p.out, "reproduce error: %g\n", extractor.ReproduceError())
	fmt.Fprintf(p.out, "deriver:         %s\n", extractor.Deriver().ID())
	fmt.Fprintf(p.out, "sec_len:         %d\n", extractor.SecLen())
	fmt.Fprintf(p.out, "nonce_len:       %d\n", extractor.NonceLen())
	fmt.Fprintf(p.out, "helpers:         %d\n", extractor.NumHelpers())
	fmt.Fprintf(p.out, "bundle size:     %d bytes\n", h.EncodedSize())
	return subcommands.ExitSuccess
}

// enrollCmd generates a key and its helper bundle from a reading.
type enrollCmd struct {
	configFlags
	text    bool
	keyFile string
	out     io.Writer
}

func (*enrollCmd) Name() string     { return "enroll" }
func (*enrollCmd) Synopsis() string { return "derives a key from a reading and writes its helper data" }
func (*enrollCmd) Usage() string {
	return `Usage: proteus enroll [--config-file=<config_file>] [--text] [--key-file=<key_file>] <value_file> <helpers_file>

Examples:
  Enroll a reading and print the key as hex:
    $ proteus enroll reading.bin helpers.bin

  Enroll from stdin, writing base64 helper data and the key to a file:
    $ read-sensor | proteus enroll --text --key-file=key.hex - helpers.txt

Flags:
`
}
func (e *enrollCmd) SetFlags(f *flag.FlagSet) {
	e.register(f)
	f.BoolVar(&e.text, "text", false, "Write helper data as base64 text instead of binary.")
	f.StringVar(&e.keyFile, "key-file", "", "Write the hex key to this file instead of stdout. Optional.")
}

func (e *enrollCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected value file and helpers file)")
		return subcommands.ExitUsageError
	}
	extractor, ok := e.extractor()
	if !ok {
		return subcommands.ExitFailure
	}

	value, err := readInput(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read value: %v", err)
		return subcommands.ExitFailure
	}
	defer fuzzy.Zeroize(value)

	key, helpers, err := extractor.Generate(value)
	if err != nil {
		glog.Errorf("Failed to enroll value: %v", err)
		return subcommands.ExitFailure
	}
	defer fuzzy.Zeroize(key)

	if err := writeBundle(f.Arg(1), helpers, e.text); err != nil {
		glog.Errorf("Failed to write helper data: %v", err)
		return subcommands.ExitFailure
	}
	glog.Infof("Enrolled bundle %s with %d helpers, key fingerprint %s", helpers.ID, helpers.Len(), fuzzy.GetKeyFingerprint(key))

	if err := writeKey(e.out, e.keyFile, key); err != nil {
		glog.Errorf("Failed to write key: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// reproduceCmd recovers a key from a new reading and stored helper data.
type reproduceCmd struct {
	configFlags
	keyFile string
	out     io.Writer
}

func (*reproduceCmd) Name() string     { return "reproduce" }
func (*reproduceCmd) Synopsis() string { return "recovers an enrolled key from a new reading" }
func (*reproduceCmd) Usage() string {
	return `Usage: proteus reproduce [--config-file=<config_file>] [--key-file=<key_file>] <value_file> <helpers_file>

Exits with status 3 when the reading is too far from the enrolled one.

Example:
  $ proteus reproduce reading.bin helpers.bin

Flags:
`
}
func (r *reproduceCmd) SetFlags(f *flag.FlagSet) {
	r.register(f)
	f.StringVar(&r.keyFile, "key-file", "", "Write the hex key to this file instead of stdout. Optional.")
}

func (r *reproduceCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected value file and helpers file)")
		return subcommands.ExitUsageError
	}
	key, status := reproduceKey(&r.configFlags, f.Arg(0), f.Arg(1))
	if status != subcommands.ExitSuccess {
		return status
	}
	defer fuzzy.Zeroize(key)

	if err := writeKey(r.out, r.keyFile, key); err != nil {
		glog.Errorf("Failed to write key: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// sealCmd encrypts a file under the key reproduced from a reading.
type sealCmd struct {
	configFlags
	aad string
}

func (*sealCmd) Name() string     { return "seal" }
func (*sealCmd) Synopsis() string { return "encrypts a file under the key reproduced from a reading" }
func (*sealCmd) Usage() string {
	return `Usage: proteus seal [--config-file=<config_file>] [--aad=<context>] <value_file> <helpers_file> <plaintext_file> <sealed_file>

Example:
  $ proteus seal reading.bin helpers.bin secrets.json secrets.sealed

Flags:
`
}
func (s *sealCmd) SetFlags(f *flag.FlagSet) {
	s.register(f)
	f.StringVar(&s.aad, "aad", "", "Additional authenticated data bound to the sealed file. Optional.")
}

func (s *sealCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 4 {
		glog.Errorf("Not enough arguments (expected value, helpers, plaintext and sealed files)")
		return subcommands.ExitUsageError
	}
	key, status := reproduceKey(&s.configFlags, f.Arg(0), f.Arg(1))
	if status != subcommands.ExitSuccess {
		return status
	}
	defer fuzzy.Zeroize(key)

	plaintext, err := readInput(f.Arg(2))
	if err != nil {
		glog.Errorf("Failed to read plaintext: %v", err)
		return subcommands.ExitFailure
	}
	defer fuzzy.Zeroize(plaintext)

	sealed, err := fuzzy.Seal(key, plaintext, []byte(s.aad))
	if err != nil {
		glog.Errorf("Failed to seal plaintext: %v", err)
		return subcommands.ExitFailure
	}
	if err := writeOutput(f.Arg(3), []byte(sealed+"\n"), 0o644); err != nil {
		glog.Errorf("Failed to write sealed data: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// openCmd decrypts a file sealed by sealCmd.
type openCmd struct {
	configFlags
	aad string
}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "decrypts a sealed file with the key reproduced from a reading" }
func (*openCmd) Usage() string {
	return `Usage: proteus open [--config-file=<config_file>] [--aad=<context>] <value_file> <helpers_file> <sealed_file> <plaintext_file>

Flags:
`
}
func (o *openCmd) SetFlags(f *flag.FlagSet) {
	o.register(f)
	f.StringVar(&o.aad, "aad", "", "Additional authenticated data the file was sealed with. Optional.")
}

func (o *openCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 4 {
		glog.Errorf("Not enough arguments (expected value, helpers, sealed and plaintext files)")
		return subcommands.ExitUsageError
	}
	key, status := reproduceKey(&o.configFlags, f.Arg(0), f.Arg(1))
	if status != subcommands.ExitSuccess {
		return status
	}
	defer fuzzy.Zeroize(key)

	sealed, err := readInput(f.Arg(2))
	if err != nil {
		glog.Errorf("Failed to read sealed data: %v", err)
		return subcommands.ExitFailure
	}
	plaintext, err := fuzzy.Open(key, strings.TrimSpace(string(sealed)), []byte(o.aad))
	if err != nil {
		glog.Errorf("Failed to open sealed data: %v", err)
		return subcommands.ExitFailure
	}
	defer fuzzy.Zeroize(plaintext)

	if err := writeOutput(f.Arg(3), plaintext, 0o600); err != nil {
		glog.Errorf("Failed to write plaintext: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// reproduceKey runs the extractor over a reading and a helpers file. Binary
// bundles are streamed from disk; base64 bundles are decoded first.
func reproduceKey(c *configFlags, valuePath, helpersPath string) ([]byte, subcommands.ExitStatus) {
	extractor, ok := c.extractor()
	if !ok {
		return nil, subcommands.ExitFailure
	}

	value, err := readInput(valuePath)
	if err != nil {
		glog.Errorf("Failed to read value: %v", err)
		return nil, subcommands.ExitFailure
	}
	defer fuzzy.Zeroize(value)

	file, err := os.Open(helpersPath)
	if err != nil {
		glog.Errorf("Failed to open helper data: %v", err)
		return nil, subcommands.ExitFailure
	}
	defer file.Close()

	in := bufio.NewReader(file)
	var (
		key   []byte
		found bool
	)
	if magic, _ := in.Peek(4); bytes.Equal(magic, []byte("PXHB")) {
		br, err := fuzzy.NewBundleReader(in)
		if err != nil {
			glog.Errorf("Failed to read helper data: %v", err)
			return nil, subcommands.ExitFailure
		}
		key, found, err = extractor.ReproduceStream(value, br)
		if err != nil {
			glog.Errorf("Failed to reproduce key: %v", err)
			return nil, subcommands.ExitFailure
		}
	} else {
		text, err := io.ReadAll(in)
		if err != nil {
			glog.Errorf("Failed to read helper data: %v", err)
			return nil, subcommands.ExitFailure
		}
		helpers, err := fuzzy.DecodeBundle(strings.TrimSpace(string(text)))
		if err != nil {
			glog.Errorf("Failed to decode helper data: %v", err)
			return nil, subcommands.ExitFailure
		}
		key, found, err = extractor.Reproduce(value, helpers)
		if err != nil {
			glog.Errorf("Failed to reproduce key: %v", err)
			return nil, subcommands.ExitFailure
		}
	}

	if !found {
		glog.Warningf("Reading does not match the enrolled value")
		return nil, exitNoMatch
	}
	glog.V(1).Infof("Reproduced key fingerprint %s", fuzzy.GetKeyFingerprint(key))
	return key, subcommands.ExitSuccess
}

// readInput reads a whole file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to a file, or stdout for "-".
func writeOutput(path string, data []byte, perm os.FileMode) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, perm)
}

func writeBundle(path string, helpers *fuzzy.HelperBundle, text bool) error {
	if text {
		encoded, err := fuzzy.EncodeBundle(helpers)
		if err != nil {
			return err
		}
		return writeOutput(path, []byte(encoded+"\n"), 0o644)
	}

	if path == "-" {
		_, err := helpers.WriteTo(os.Stdout)
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if _, err := helpers.WriteTo(w); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// writeKey prints the key as hex to out, or to keyFile with owner-only permissions.
func writeKey(out io.Writer, keyFile string, key []byte) error {
	line := fuzzy.KeyToHex(key) + "\n"
	if keyFile == "" {
		_, err := io.WriteString(out, line)
		return err
	}
	return os.WriteFile(keyFile, []byte(line), 0o600)
}
