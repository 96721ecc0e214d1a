// Command pv is the external driver: it parses the command line into an
// internal/pvconfig.Config, wires up internal/loop, and reports the
// exit-status bitmask described in spec.md section 6.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/icetee/pv/internal/loop"
	"github.com/icetee/pv/internal/procwatch"
	"github.com/icetee/pv/internal/pvconfig"
	"github.com/icetee/pv/internal/pvdebug"
	"github.com/icetee/pv/internal/remote"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := pvconfig.Default()

	fs := flag.NewFlagSet("pv", flag.ContinueOnError)
	fs.BoolVar(&cfg.Progress, "progress", true, "show the progress bar")
	fs.BoolVar(&cfg.Timer, "timer", true, "show elapsed time")
	fs.BoolVar(&cfg.ElapsedETA, "eta", true, "show estimated time remaining")
	fs.BoolVar(&cfg.WallClockETA, "fineta", false, "show estimated completion wall-clock time")
	fs.BoolVar(&cfg.Rate, "rate", true, "show current transfer rate")
	fs.BoolVar(&cfg.AverageRate, "average-rate", false, "show average transfer rate")
	fs.BoolVar(&cfg.Bytes, "bytes", true, "show bytes transferred")
	fs.BoolVar(&cfg.BufferFill, "buffer-percent", false, "show buffer fill percentage")
	fs.IntVar(&cfg.LastOutputN, "last-written", 0, "show the last N bytes written")
	fs.BoolVar(&cfg.NumericOnly, "numeric", false, "emit a single updating number instead of a full line")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "disable the status line entirely")

	rateLimit := fs.String("rate-limit", "", "maximum transfer rate (bytes/sec, K/M/G suffix allowed)")
	bufSize := fs.String("buffer-size", "", "transfer buffer size (bytes, K/M/G suffix allowed)")
	size := fs.String("size", "", "assume this total size instead of discovering it")
	fs.BoolVar(&cfg.StopAtSize, "stop-at-size", false, "stop after transferring --size bytes")
	fs.BoolVar(&cfg.SkipReadErrors, "skip-errors", false, "skip past read errors instead of aborting")
	fs.BoolVar(&cfg.NoZeroCopy, "no-splice", false, "never use the zero-copy fast path")
	fs.BoolVar(&cfg.LineMode, "line-mode", false, "count and break on lines instead of raw bytes")
	fs.BoolVar(&cfg.NullDelimited, "null", false, "line mode: lines are terminated by a null byte")
	delay := fs.String("delay-start", "", "wait this long before the first display update")
	interval := fs.String("interval", "1s", "display update interval")
	fs.BoolVar(&cfg.WaitForFirstByte, "wait", false, "wait for the first byte before starting the timer")

	fs.BoolVar(&cfg.Force, "force", false, "show the status line even when stderr is not a terminal")
	fs.BoolVar(&cfg.Cursor, "cursor", false, "use cursor positioning to coordinate with sibling instances")
	fs.IntVar(&cfg.Width, "width", 0, "assume this terminal width instead of discovering it")
	fs.IntVar(&cfg.Height, "height", 0, "assume this terminal height instead of discovering it")
	fs.StringVar(&cfg.Name, "name", "", "use this name in place of the current input's filename")
	fs.StringVar(&cfg.Format, "format", "", "custom format string (overrides the individual display toggles)")

	watchPIDFD := fs.String("watch-pid-and-fd", "", "PID:FD of a descriptor to watch instead of copying stdin")

	fs.StringVar(&cfg.PidFile, "pidfile", "", "write this process's pid to the given file")
	remoteTarget := fs.Int("remote", 0, "pid of a running pv instance to send a live configuration update to")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (host:port)")

	output := fs.String("output", "", "output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *rateLimit != "" {
		v, err := parseSize(*rateLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pv: --rate-limit: %v\n", err)
			return 2
		}
		cfg.RateLimit = v
	}
	if *bufSize != "" {
		v, err := parseSize(*bufSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pv: --buffer-size: %v\n", err)
			return 2
		}
		cfg.BufferSize = int(v)
	}
	if *size != "" {
		v, err := parseSize(*size)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pv: --size: %v\n", err)
			return 2
		}
		cfg.Size = v
	}
	if *delay != "" {
		d, err := time.ParseDuration(*delay)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pv: --delay-start: %v\n", err)
			return 2
		}
		cfg.DelayStart = d
	}
	if *interval != "" {
		d, err := time.ParseDuration(*interval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pv: --interval: %v\n", err)
			return 2
		}
		cfg.Interval = d
	}
	if *watchPIDFD != "" {
		pid, fd, err := procwatch.ParsePIDFD(*watchPIDFD)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pv: --watch-pid-and-fd: %v\n", err)
			return 2
		}
		cfg.WatchPID, cfg.WatchFD = pid, fd
	}

	closeDebug := pvdebug.Init()
	defer closeDebug()

	if cfg.PidFile != "" {
		if err := os.WriteFile(cfg.PidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "pv: %s: %v\n", cfg.PidFile, err)
		}
		defer os.Remove(cfg.PidFile)
	}

	if *remoteTarget != 0 {
		return sendRemote(*remoteTarget, cfg)
	}

	var outFile *os.File
	outPath := *output
	if outPath == "" || outPath == "-" {
		outFile = os.Stdout
		outPath = ""
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pv: %s: %v\n", outPath, err)
			return 2
		}
		defer f.Close()
		outFile = f
	}

	inputs := fs.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	l, err := loop.New(cfg, inputs, outFile, outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pv: %v\n", err)
		return 2
	}
	return l.Run()
}

func sendRemote(targetPID int, cfg *pvconfig.Config) int {
	s, err := remote.OpenSender()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pv: remote channel: %v\n", err)
		return loop.ExitRemoteFailure
	}
	if err := s.Send(targetPID, remote.FromConfig(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "pv: remote: %v\n", err)
		return loop.ExitRemoteFailure
	}
	return loop.ExitOK
}

// parseSize parses a byte count with an optional K/M/G/T suffix (1000- or
// 1024-based, matching whichever letter case the user wrote: lowercase k
// is 1000, uppercase K is 1024), per spec.md section 6's flag surface.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	suffix := s[len(s)-1]
	numPart := s
	switch suffix {
	case 'k':
		mult, numPart = 1000, s[:len(s)-1]
	case 'K':
		mult, numPart = 1024, s[:len(s)-1]
	case 'm':
		mult, numPart = 1000*1000, s[:len(s)-1]
	case 'M':
		mult, numPart = 1024*1024, s[:len(s)-1]
	case 'g':
		mult, numPart = 1000*1000*1000, s[:len(s)-1]
	case 'G':
		mult, numPart = 1024*1024*1024, s[:len(s)-1]
	case 't':
		mult, numPart = 1000*1000*1000*1000, s[:len(s)-1]
	case 'T':
		mult, numPart = 1024*1024*1024*1024, s[:len(s)-1]
	}
	var v int64
	if _, err := fmt.Sscanf(numPart, "%d", &v); err != nil {
		return 0, err
	}
	return v * mult, nil
}
