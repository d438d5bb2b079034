// Command weiche serves an OpenAI-compatible chat-completions endpoint in
// front of a tool-using agent.
//
// Usage:
//
//	weiche serve [--config path] [--port n]
//	weiche version
//
// Configuration is read from a YAML file and WEICHE_* environment
// variables; the agent backend is chosen from ANTHROPIC_API_KEY,
// OPENAI_API_KEY or WEICHE_BEARER_TOKEN unless agent.strategy is set.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "weiche",
		Short:         "OpenAI-compatible chat completions backed by a tool-using agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "weiche %s\n", version)
		},
	}
}
