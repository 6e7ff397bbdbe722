// guardtax runs guardrail overhead experiments and analyzes their
// persisted results.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "guardtax",
	Short: "Measure the latency, token, and accuracy tax of LLM guardrails",
	Long: `guardtax drives a labeled prompt corpus through interchangeable
response mechanisms (an unguarded baseline and guardrail variants),
judges every response with an independent LLM judge, and turns the
persisted trial records into comparative statistics.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		level := slog.LevelInfo
		switch lvl, _ := cmd.Flags().GetString("log-level"); lvl {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		slog.SetDefault(slog.New(
			tint.NewHandler(os.Stderr, &tint.Options{
				Level:      level,
				TimeFormat: "15:04:05",
			}),
		))
	}
}

// apiKeyFor resolves the provider's API key from the environment.
func apiKeyFor(provider string) (string, error) {
	var names []string
	switch provider {
	case "anthropic":
		names = []string{"ANTHROPIC_API_KEY"}
	case "openai":
		names = []string{"OPENAI_API_KEY"}
	case "google":
		names = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}
	default:
		return "", fmt.Errorf("no API key variable known for provider %q", provider)
	}
	for _, name := range names {
		if key := os.Getenv(name); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("set %s for provider %q", names[0], provider)
}
