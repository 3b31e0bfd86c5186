// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// hone-ctl asks a running hone-dumpcap to rotate its output file or stop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/mbeema/honedumpcap/pkg/config"
	"github.com/mbeema/honedumpcap/pkg/control"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var dir string
	fs := pflag.NewFlagSet("hone-ctl", pflag.ContinueOnError)
	fs.StringVarP(&dir, "dir", "d", "", "control directory (default: control.dir from the config file)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hone-ctl [--dir DIR] rotate|stop\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cmd, err := control.ParseCommand(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if dir == "" {
		cfg, _, err := config.LoadDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			return 1
		}
		dir = cfg.Control.Dir
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "no control directory: pass --dir or set control.dir")
		return 1
	}

	f, err := control.OpenControlFile(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "is hone-dumpcap running? %v\n", err)
		return 1
	}
	defer f.Close()

	if err := f.Send(cmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("sent %s to %s\n", cmd, f.Path())
	return 0
}
