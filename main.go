// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Main entrypoint for vid2slides application

package main

import (
	"fmt"
	"os"

	"github.com/evolution-gaming/vid2slides/internal/logging"
)

// root represents top level of vid2slides command, including dispatching to subcommands.
func root(args []string) error {
	usage := `vid2slides - extract slides from presentation videos

Usage:

    vid2slides <command> [arguments] [-h|-help]

The commands are:

    extract     detect slide changes in video(s), save slides and assemble PDF
    pdf         assemble PDF from a folder of images
    dump-conf   output actual application configuration
    version     print vid2slides version and exit

Use "vid2slides <command> -h|-help" for more information about command.`

	if len(args) < 1 {
		fmt.Println(usage)
		return &AppError{msg: "please, specify command", exitCode: 2}
	}

	switch args[0] {
	case "extract":
		return CreateExtractCommand().Run(args[1:])
	case "pdf":
		return CreatePdfCommand().Run(args[1:])
	case "dump-conf", "dump":
		return CreateDumpConfCommand().Run(args[1:])
	case "version":
		printVersion(os.Stdout)
		return nil
	case "-h", "-help", "--help", "?":
		fmt.Println(usage)
		return &AppError{
			exitCode: 2,
		}
	default:
		// No commands were matched at this point, so bail out with default usage message.
		fmt.Println(usage)
		return &AppError{
			msg:      "unknown command/flag",
			exitCode: 2,
		}
	}
}

func main() {
	// Enable info logger by default and early enough.
	logging.EnableInfoLogger()

	if err := root(os.Args[1:]); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "%v\n", msg)
		}
		switch e := err.(type) {
		case *AppError:
			os.Exit(e.ExitCode())
		default:
			os.Exit(1)
		}
	}
	os.Exit(0)
}
