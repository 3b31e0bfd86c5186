// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package options parses the dumpcap command line and decides which
// operation the process performs.
package options

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/mbeema/honedumpcap/pkg/policy"
)

// HoneInterface is the name of the synthetic capture interface. It is
// always listed first, so index 1 also selects it.
const HoneInterface = "Hone"

// NoParent is the -Z value meaning supervised without a watchable parent.
const NoParent = "none"

// ErrUsage marks command line errors. They are reported together with the
// usage text before any resource is opened.
var ErrUsage = errors.New("usage error")

// Operation is the single action chosen for this run. Exactly one of
// Capture, Passthrough, ListInterfaces, LinkTypes or Help.
type Operation interface {
	operation()
}

// Capture records from the Hone device.
type Capture struct {
	Thresholds policy.Thresholds
	// OutputPath is the -w target; empty means temporary files.
	OutputPath string
	// Rotate is set when any -b condition was given.
	Rotate bool
	// Retain is the -b files:N ring size; zero keeps every file.
	Retain int
	// SnapLen is the -s value; zero leaves the device default.
	SnapLen int
}

// Passthrough runs the original dumpcap with the forwarded arguments.
type Passthrough struct {
	Args []string
}

// ListInterfaces prints the interface list with Hone spliced in first.
type ListInterfaces struct {
	MachineReadable bool
}

// LinkTypes prints the link layer types of the selected interface.
type LinkTypes struct {
	Hone            bool
	MachineReadable bool
	Args            []string
}

// Help prints usage and exits successfully.
type Help struct{}

func (Capture) operation()        {}
func (Passthrough) operation()    {}
func (ListInterfaces) operation() {}
func (LinkTypes) operation()      {}
func (Help) operation()           {}

// Options is the parsed command line.
type Options struct {
	Operation Operation

	// ParentPID is the raw -Z value. Any value, including "none", means a
	// supervising parent reads the framed status protocol.
	ParentPID string
	// MachineReadable is -M.
	MachineReadable bool
}

// Supervised reports whether status goes to a parent as frames.
func (o *Options) Supervised() bool {
	return o.ParentPID != ""
}

// ParentProcess returns the numeric parent PID when one was given.
func (o *Options) ParentProcess() (int32, bool) {
	if o.ParentPID == "" || o.ParentPID == NoParent {
		return 0, false
	}
	pid, err := strconv.ParseInt(o.ParentPID, 10, 32)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return int32(pid), true
}

// SupervisedArgs reports whether raw args name a parent with -Z. Used to
// pick the error channel when Parse itself fails.
func SupervisedArgs(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		if strings.HasPrefix(arg, "-Z") || strings.HasPrefix(arg, "--parent") {
			return true
		}
	}
	return false
}

type flags struct {
	autoStop   conditions
	autoRotate conditions
	count      uint64
	list       bool
	interfaces []string
	linkTypes  bool
	machine    bool
	snapLen    int
	output     string
	parent     string
	help       bool
}

func (f *flags) addFlags(fs *pflag.FlagSet) {
	fs.VarP(&f.autoStop, "autostop", "a", "Stop capture after condition <cond>")
	fs.VarP(&f.autoRotate, "ring-buffer", "b", "Rotate file after condition <cond>")
	fs.Uint64VarP(&f.count, "count", "c", 0, "Stop capture after <count> packets")
	fs.BoolVarP(&f.list, "list-interfaces", "D", false, "Print list of interfaces and exit")
	fs.StringArrayVarP(&f.interfaces, "interface", "i", nil, "Capture on interface <interface>")
	fs.BoolVarP(&f.linkTypes, "list-data-link-types", "L", false, "Print interface link layer types and exit")
	fs.BoolVarP(&f.machine, "machine-readable", "M", false, "Use machine-readable output")
	fs.IntVarP(&f.snapLen, "snapshot-length", "s", 0, "Set capture snap length to <snap len>")
	fs.StringVarP(&f.output, "write", "w", "", "Write captured data to <file>")
	fs.StringVarP(&f.parent, "parent", "Z", "", "Running as child of parent <pid>")
	fs.BoolVarP(&f.help, "help", "h", false, "Print usage and exit")
}

// Parse interprets args, which exclude the program name. Options the shim
// does not know are ignored here and still forwarded to the original tool.
func Parse(args []string) (*Options, error) {
	var f flags
	fs := pflag.NewFlagSet("hone-dumpcap", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetInterspersed(true)
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)
	f.addFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	opts := &Options{ParentPID: f.parent, MachineReadable: f.machine}
	if f.help {
		opts.Operation = Help{}
		return opts, nil
	}

	if f.list && f.linkTypes {
		return nil, fmt.Errorf("%w: the '-D' and '-L' options are mutually exclusive", ErrUsage)
	}
	if f.snapLen < 0 {
		return nil, fmt.Errorf("%w: invalid snap length %d with the -s option", ErrUsage, f.snapLen)
	}

	hone := selectsHone(f.interfaces)
	switch {
	case f.list:
		opts.Operation = ListInterfaces{MachineReadable: f.machine || opts.Supervised()}
	case f.linkTypes:
		opts.Operation = LinkTypes{
			Hone:            hone,
			MachineReadable: f.machine,
			Args:            RewriteInterfaceArgs(args),
		}
	case hone:
		opts.Operation = f.capture()
	default:
		opts.Operation = Passthrough{Args: RewriteInterfaceArgs(args)}
	}
	return opts, nil
}

func (f *flags) capture() Capture {
	c := Capture{
		OutputPath: f.output,
		Rotate:     len(f.autoRotate) > 0,
		SnapLen:    f.snapLen,
	}
	c.Thresholds.Stop.Packets = f.count
	for _, cond := range f.autoStop {
		switch cond.Kind {
		case KindDuration:
			c.Thresholds.Stop.Duration = cond.Duration()
		case KindFileSize:
			c.Thresholds.Stop.Bytes = cond.Bytes()
		case KindFiles:
			c.Thresholds.Stop.Files = cond.Value
		}
	}
	for _, cond := range f.autoRotate {
		switch cond.Kind {
		case KindDuration:
			c.Thresholds.Rotate.Duration = cond.Duration()
		case KindFileSize:
			c.Thresholds.Rotate.Bytes = cond.Bytes()
		case KindFiles:
			c.Retain = int(cond.Value)
		}
	}
	return c
}

// selectsHone reports whether the interface list picks the Hone device. No
// -i at all defaults to Hone.
func selectsHone(interfaces []string) bool {
	if len(interfaces) == 0 {
		return true
	}
	for _, iface := range interfaces {
		if iface == HoneInterface || iface == "1" {
			return true
		}
	}
	return false
}

// RewriteInterfaceArgs returns a copy of args with every numeric interface
// index above 1 decremented, undoing the shift caused by listing Hone first.
func RewriteInterfaceArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)

	for i := 0; i < len(out); i++ {
		arg := out[i]
		switch {
		case arg == "-i" || arg == "--interface":
			if i+1 < len(out) {
				i++
				out[i] = decrementIndex(out[i])
			}
		case strings.HasPrefix(arg, "--interface="):
			out[i] = "--interface=" + decrementIndex(strings.TrimPrefix(arg, "--interface="))
		case strings.HasPrefix(arg, "-i") && !strings.HasPrefix(arg, "--"):
			out[i] = "-i" + decrementIndex(strings.TrimPrefix(arg, "-i"))
		}
	}
	return out
}

func decrementIndex(value string) string {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil || n <= 1 {
		return value
	}
	return strconv.FormatUint(n-1, 10)
}

// Condition kinds accepted by -a and -b.
const (
	KindDuration = "duration"
	KindFileSize = "filesize"
	KindFiles    = "files"
)

// Condition is one parsed kind:number argument.
type Condition struct {
	Kind  string
	Value uint32
}

// ParseCondition parses "duration:SECONDS", "filesize:KIB" or "files:COUNT".
func ParseCondition(s string) (Condition, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || strings.Contains(value, ":") {
		return Condition{}, fmt.Errorf("invalid condition %q: want kind:number", s)
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return Condition{}, fmt.Errorf("invalid condition %q: %w", s, err)
	}
	switch kind {
	case KindDuration, KindFileSize, KindFiles:
	default:
		return Condition{}, fmt.Errorf("invalid condition %q: unknown kind %q", s, kind)
	}
	return Condition{Kind: kind, Value: uint32(n)}, nil
}

// Duration converts a duration condition from seconds.
func (c Condition) Duration() time.Duration {
	return time.Duration(c.Value) * time.Second
}

// Bytes converts a filesize condition from KiB.
func (c Condition) Bytes() uint64 {
	return uint64(c.Value) * 1024
}

func (c Condition) String() string {
	return fmt.Sprintf("%s:%d", c.Kind, c.Value)
}

// conditions collects repeated -a or -b arguments as a pflag.Value.
type conditions []Condition

func (c *conditions) String() string {
	parts := make([]string, 0, len(*c))
	for _, cond := range *c {
		parts = append(parts, cond.String())
	}
	return strings.Join(parts, ",")
}

func (c *conditions) Set(s string) error {
	cond, err := ParseCondition(s)
	if err != nil {
		return err
	}
	*c = append(*c, cond)
	return nil
}

func (c *conditions) Type() string {
	return "cond"
}

// Usage returns the help text for the named program.
func Usage(progname string) string {
	return fmt.Sprintf(`Usage: %s [options]
  -a <cond>         Stop capture after condition <cond>
  -b <cond>         Rotate file after condition <cond>
  -c <count>        Stop capture after <count> packets
  -D                Print list of interfaces and exit
  -i <interface>    Capture on interface <interface>
  -L                Print interface link layer types and exit
  -M                Use machine-readable output
  -s <snap len>     Set capture snap length to <snap len>
  -w <file>         Write captured data to <file>
  -Z <pid>          Running as child of parent <pid>

The -a and -b options take the following condition formats:
  duration:NUM  Stop or rotate after NUM seconds
  filesize:NUM  Stop or rotate after NUM KB
  files:NUM     Stop after NUM files (-a) or keep NUM files (-b)

The PID for the -Z can be 'none'

This program uses the same command line arguments as the standard dumpcap
utility.  When the interface is set to "Hone", it performs the capture
using the Hone sensor.  Otherwise, it calls the standard dumpcap utility
to perform the capture.

This program also intercepts the option to print the list of interfaces
and adds the "Hone" interface to the list.
`, filepath.Base(progname))
}
