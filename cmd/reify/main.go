package main

import (
	"fmt"
	"io"
	"os"
)

var version = "dev"

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

var commands = map[string]func([]string) error{
	"run":      runRun,
	"validate": runValidate,
	"list":     runList,
	"resolve":  runResolve,
}

func usage() {
	fmt.Fprintf(os.Stderr, `reify - operation pipeline evaluator (version %s)

Usage:
  reify <command> [options]

Commands:
  run        Execute a named pipeline from a config file
  validate   Validate one or more config files
  list       List the pipelines defined in a config file
  resolve    Resolve a single value expression against input and results
  version    Print the version

Run 'reify <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
