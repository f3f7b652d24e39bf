package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newWildcardsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wildcards [name...]",
		Short: "List wildcards, or print the entries of the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWildcards(a, cmd.OutOrStdout(), args)
		},
	}
}

func runWildcards(a *app, out io.Writer, names []string) error {
	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	store := resolver.Store()
	header := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)

	if len(names) > 0 {
		for _, name := range names {
			list, err := store.Get(name)
			if err != nil {
				return err
			}
			header.Fprintf(out, "__%s__ ", name)
			dim.Fprintf(out, "(%d entries)\n", list.Len())
			for _, e := range list.Entries() {
				fmt.Fprintf(out, "  %s\n", e)
			}
		}
		return nil
	}

	all, err := store.Names()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintf(out, "No wildcards in %s\n", a.cfg.WildcardDir)
		return nil
	}

	width := 0
	for _, name := range all {
		width = max(width, len(name)+4)
	}
	total := 0
	for _, name := range all {
		list, err := store.Get(name)
		if err != nil {
			return err
		}
		total += list.Len()
		fmt.Fprintf(out, "  %-*s ", width, "__"+name+"__")
		dim.Fprintf(out, "%s\n", humanize.Comma(int64(list.Len())))
	}
	header.Fprintf(out, "%d wildcards, %s entries in %s\n", len(all), humanize.Comma(int64(total)), a.cfg.WildcardDir)
	return nil
}
