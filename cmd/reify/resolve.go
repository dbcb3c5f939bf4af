package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/SylphxAI/reify"
	"github.com/SylphxAI/reify/pipeline"
)

func runResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	inputJSON := fs.String("input", "", "Input as a JSON object")
	resultsJSON := fs.String("results", "", "Results environment as a JSON object")
	nowFlag := fs.String("now", "", "Fix $now to an RFC 3339 timestamp")
	strict := fs.Bool("strict", false, "Fail on result references that do not resolve")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: reify resolve [options] '<expression JSON>'\n\nResolve a value expression and print it as JSON.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("exactly one expression is required")
	}

	var raw any
	if err := json.Unmarshal([]byte(fs.Arg(0)), &raw); err != nil {
		return fmt.Errorf("invalid expression JSON: %w", err)
	}
	input, err := decodeObject("input", []byte(*inputJSON))
	if err != nil {
		return err
	}
	results, err := decodeObject("results", []byte(*resultsJSON))
	if err != nil {
		return err
	}

	opts := []pipeline.RunOption{pipeline.WithStrictRefs(*strict)}
	if *nowFlag != "" {
		now, err := time.Parse(time.RFC3339, *nowFlag)
		if err != nil {
			return fmt.Errorf("invalid -now value: %w", err)
		}
		opts = append(opts, pipeline.WithNow(now))
	}

	engine := reify.NewEngine()
	v, err := engine.ResolveValue(raw, engine.NewEvalContext(input, results, opts...))
	if err != nil {
		return err
	}
	return writeJSON(v)
}
