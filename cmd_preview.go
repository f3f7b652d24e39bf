package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"promptbatch/batch"
	"promptbatch/prompt"
	"promptbatch/wildcard"
)

type previewOptions struct {
	negative string
	count    int
	seed     int64
	all      bool
	limit    int
	policy   string
}

func newPreviewCmd(a *app) *cobra.Command {
	opts := &previewOptions{}
	cmd := &cobra.Command{
		Use:   "preview <template>",
		Short: "Resolve a template without generating anything",
		Long: `Resolve a prompt template against the wildcard directory and print the
results. By default prints --count random draws; --all enumerates every
combination instead.

  promptbatch preview "a __colors__ {cat|dog}" --count 5 --seed 42
  promptbatch preview "a {red|blue} {cat|dog}" --all`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(a, cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.negative, "negative", "n", "", "negative prompt template")
	flags.IntVarP(&opts.count, "count", "c", 1, "number of random draws")
	flags.Int64Var(&opts.seed, "seed", -1, "resolution seed; negative picks one at random")
	flags.BoolVar(&opts.all, "all", false, "enumerate every combination")
	flags.IntVar(&opts.limit, "limit", 0, "combination ceiling for --all (default MAX_COMBINATIONS)")
	flags.StringVar(&opts.policy, "policy", "", "variant policy: random or cycle (default VARIANT_POLICY)")
	return cmd
}

func runPreview(a *app, out io.Writer, tpl string, opts *previewOptions) error {
	if opts.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	policy := a.cfg.VariantPolicy
	if opts.policy != "" {
		policy = strings.ToLower(opts.policy)
	}
	if policy != "random" && policy != "cycle" {
		return fmt.Errorf("--policy must be random or cycle")
	}

	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	builder := prompt.NewBuilder(resolver)
	t := prompt.Template{Prompt: tpl, NegativePrompt: opts.negative}
	if err := builder.Validate(t); err != nil {
		return err
	}

	header := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)

	if opts.all {
		all, err := builder.BuildAll(t, prompt.WithLimit(opts.limit))
		if err != nil {
			return err
		}
		header.Fprintf(out, "%d combinations\n", all.Count())
		i := 0
		for r := range all.All() {
			i++
			printResolved(out, dim, i, r)
		}
		return nil
	}

	seed := opts.seed
	if seed < 0 {
		seed = batch.RandomSeed()
	}
	rc := wildcard.NewContext(seed, wildcard.WithVariantPolicy(wildcard.ParseVariantPolicy(policy)))
	prompts, err := builder.Build(t, opts.count, rc)
	if err != nil {
		return err
	}
	header.Fprintf(out, "%d prompts ", len(prompts))
	dim.Fprintf(out, "(seed %d, %s)\n", seed, policy)
	for i, r := range prompts {
		printResolved(out, dim, i+1, r)
	}
	return nil
}

func printResolved(out io.Writer, dim *color.Color, n int, r prompt.Resolved) {
	fmt.Fprintf(out, "%4d. %s\n", n, r.Prompt)
	if r.NegativePrompt != "" {
		dim.Fprintf(out, "      negative: %s\n", r.NegativePrompt)
	}
}
