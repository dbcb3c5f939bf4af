package main

import (
	"errors"
	"flag"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/SylphxAI/reify/config"
)

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: reify validate <config.yaml> [config.yaml...]\n\nValidate engine settings and every pipeline definition.\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("config file path is required")
	}

	paths := fs.Args()
	counts := make([]int, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			f, err := config.LoadFile(path)
			if err == nil {
				err = f.Validate()
			}
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
				return nil
			}
			counts[i] = len(f.Pipelines)
			return nil
		})
	}
	_ = g.Wait()

	for i, path := range paths {
		if errs[i] == nil {
			fmt.Fprintf(stdout, "config %s is valid (%d pipelines)\n", path, counts[i])
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validation failed:\n%w", err)
	}
	return nil
}
