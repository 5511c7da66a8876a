// Package config parses and validates the command-line flags of spec §6
// into a typed Config, using the standard library flag package — no
// third-party CLI framework appears anywhere in the retrieval pack for a
// single binary's argument parsing (see SPEC_FULL.md's AMBIENT STACK).
package config

import (
	"flag"
	"fmt"
	"io"
	"regexp"
	"time"
)

// Config is the validated, typed result of parsing argv.
type Config struct {
	Mp4Mode                   bool
	InitialTargetDuration     time.Duration
	TargetDuration            time.Duration
	TargetFragDuration        time.Duration
	AccessTimeout             time.Duration
	ClosingCommand            string
	ReadRatePerMille          int
	FillReadRatePerMille      int
	SegNum                    int
	SegMaxBytes               int64
	EndpointBaseName          string
	StreamMode                bool
}

var endpointNameRE = regexp.MustCompile(`^[0-9A-Za-z_]{1,64}$`)

// ExitUsage and ExitArgError are the exit codes spec §6 assigns to -h and
// to any other argument/resource error, respectively.
const (
	ExitOK        = 0
	ExitArgError  = 1
	ExitUsage     = 2
)

// ParseError carries the process exit code the caller should use.
type ParseError struct {
	ExitCode int
	Err      error
}

func (e *ParseError) Error() string { return e.Err.Error() }

// Parse parses args (excluding argv[0]) into a validated Config. usageOut
// receives -h's usage text.
func Parse(args []string, usageOut io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("tsmemseg", flag.ContinueOnError)
	fs.SetOutput(usageOut)

	mp4Mode := fs.Bool("4", false, "emit fragmented MP4 instead of TS passthrough")
	initSec := fs.Float64("i", 0, "initial target segment duration in seconds (0-60)")
	steadySec := fs.Float64("t", 2, "steady-state target segment duration in seconds (0-60)")
	fragSec := fs.Float64("p", 0, "target fragment duration in seconds (0-60)")
	accessSec := fs.Float64("a", 10, "idle access timeout in seconds (0-600, 0 disables)")
	closingCmd := fs.String("c", "", "command to run on idle-timeout")
	readPct := fs.Float64("r", 0, "steady read-rate percent (0 or 100-1000, 0 unthrottled)")
	fillPct := fs.Float64("f", -1, "initial fill read-rate percent (defaults to 1.5x steady)")
	segNum := fs.Int("s", 8, "segment ring size (2-99)")
	maxKB := fs.Int("m", 4096, "max KB per segment (32-32768)")

	fs.Usage = func() {
		fmt.Fprintf(usageOut, "Usage: tsmemseg [-4][-i sec][-t sec][-p sec][-a acc_timeout][-c cmd][-r readrate][-f fill_readrate][-s seg_num][-m max_kbytes] seg_name\n")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, &ParseError{ExitCode: ExitUsage, Err: err}
		}
		return nil, &ParseError{ExitCode: ExitArgError, Err: err}
	}

	if fs.NArg() != 1 {
		return nil, argErr("exactly one positional endpoint name/\"-\" is required")
	}
	name := fs.Arg(0)

	cfg := &Config{
		Mp4Mode:        *mp4Mode,
		ClosingCommand: *closingCmd,
	}

	if name == "-" {
		cfg.StreamMode = true
	} else if !endpointNameRE.MatchString(name) {
		return nil, argErr("endpoint base name must be 1-64 characters of [0-9A-Za-z_], or \"-\"")
	}
	cfg.EndpointBaseName = name

	var err error
	if cfg.InitialTargetDuration, err = secondsInRange(*initSec, 0, 60); err != nil {
		return nil, argErr("-i: %v", err)
	}
	if cfg.TargetDuration, err = secondsInRange(*steadySec, 0, 60); err != nil {
		return nil, argErr("-t: %v", err)
	}
	if cfg.TargetFragDuration, err = secondsInRange(*fragSec, 0, 60); err != nil {
		return nil, argErr("-p: %v", err)
	}
	if cfg.AccessTimeout, err = secondsInRange(*accessSec, 0, 600); err != nil {
		return nil, argErr("-a: %v", err)
	}

	if cfg.ReadRatePerMille, err = perMille(*readPct); err != nil {
		return nil, argErr("-r: %v", err)
	}
	if *fillPct < 0 {
		cfg.FillReadRatePerMille = cfg.ReadRatePerMille * 3 / 2
	} else if cfg.FillReadRatePerMille, err = perMille(*fillPct); err != nil {
		return nil, argErr("-f: %v", err)
	}

	if *segNum < 2 || *segNum >= 100 {
		return nil, argErr("-s: segment ring size must be in [2, 99], got %d", *segNum)
	}
	cfg.SegNum = *segNum

	maxBytes := int64(*maxKB) * 1024
	if maxBytes < 32*1024 || maxBytes > 32*1024*1024 {
		return nil, argErr("-m: max bytes per segment must be in [32, 32768] KB, got %d", *maxKB)
	}
	cfg.SegMaxBytes = maxBytes

	return cfg, nil
}

func argErr(format string, a ...any) error {
	return &ParseError{ExitCode: ExitArgError, Err: fmt.Errorf(format, a...)}
}

func secondsInRange(sec, min, max float64) (time.Duration, error) {
	if sec < min || sec > max {
		return 0, fmt.Errorf("must be in [%g, %g] seconds, got %g", min, max, sec)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func perMille(percent float64) (int, error) {
	if percent < 0 || percent > 1000 {
		return 0, fmt.Errorf("must be in [0, 1000] percent, got %g", percent)
	}
	v := int(percent * 10)
	if v != 0 && v < 1000 {
		return 0, fmt.Errorf("nonzero rate must be at least 100 percent, got %g", percent)
	}
	return v, nil
}
