package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oakensoul/aida/internal/config"
	"github.com/oakensoul/aida/internal/phase"
)

var configureSet []string

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().StringArrayVar(&configureSet, "set", nil, "answer a preference as key=value (repeatable)")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the record layout under ~/.claude",
	Long: `Create the per-user record layout: the memento store, its completed
archive, and the tool config directory. Safe to re-run.`,
	RunE: runInit,
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Detect project facts and record preferences",
	Long: `Detect version-control facts for the current project and save them
into .claude/aida-project-context.yml, together with any preferences
answered via --set.

Examples:
  # Refresh detected facts, list unanswered preferences
  aida configure

  # Answer preferences
  aida configure --set commit_style=conventional --set verbosity=terse`,
	RunE: runConfigure,
}

// protocolContext builds a phase context from the process environment.
func protocolContext() (phase.Context, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return phase.Context{}, fmt.Errorf("resolving home directory: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return phase.Context{}, fmt.Errorf("getting working directory: %w", err)
	}
	return phase.Context{Home: home, WorkDir: wd}, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	pc, err := protocolContext()
	if err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	registry := newRegistry()
	h, err := registry.Lookup("install")
	if err != nil {
		return err
	}

	ctx, _ := phase.NewRequestContext(context.Background(), h.Name())
	res := h.Execute(ctx, pc, nil, nil)
	if outputJSON {
		return printJSON(res)
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	fmt.Println(res.Message)
	for _, p := range res.Paths {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	pc, err := protocolContext()
	if err != nil {
		return err
	}

	responses := phase.Responses{}
	for _, kv := range configureSet {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --set %q (want key=value)", kv)
		}
		responses[key] = value
	}

	registry := newRegistry()
	h, err := registry.Lookup("configure")
	if err != nil {
		return err
	}

	ctx, _ := phase.NewRequestContext(context.Background(), h.Name())
	inf, err := h.Infer(ctx, pc)
	if err != nil {
		return err
	}

	res := h.Execute(ctx, pc, inf.Inferred, responses)
	if outputJSON {
		return printJSON(res)
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	fmt.Println(res.Message)

	// Re-run infer so remaining questions reflect the answers just saved.
	inf, err = h.Infer(ctx, pc)
	if err == nil && len(inf.Questions) > 0 {
		fmt.Println("\nUnanswered preferences:")
		for _, q := range inf.Questions {
			if len(q.Options) > 0 {
				fmt.Printf("  %s: %s (%s)\n", q.Key, q.Prompt, strings.Join(q.Options, ", "))
			} else {
				fmt.Printf("  %s: %s\n", q.Key, q.Prompt)
			}
		}
	}
	return nil
}
