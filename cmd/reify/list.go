package main

import (
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/SylphxAI/reify/config"
)

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	cfgPath := fs.String("c", "reify.yaml", "Config file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: reify list [options]\n\nList the pipelines defined in a config file.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	file, err := config.LoadFile(*cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTEPS\tRETURN")
	for _, name := range file.PipelineNames() {
		p, err := file.Pipeline(name)
		if err != nil {
			fmt.Fprintf(tw, "%s\tinvalid\t-\n", name)
			continue
		}
		ret := "results"
		if p.Return != nil {
			ret = "expression"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", name, len(p.Steps), ret)
	}
	return tw.Flush()
}
