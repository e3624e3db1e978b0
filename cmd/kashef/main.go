package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvakili/kashef/api/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "kashef",
		Short: "Kashef - guided offer discovery",
		Long: `Kashef narrows a catalogue of seller offers down to a single match
through a short clarifying conversation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		chatCmd(),
		seedCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Host:       %s\n", cfg.Server.Host)
			fmt.Printf("  Port:       %d\n", cfg.Server.Port)
			fmt.Printf("  Origins:    %v\n", cfg.Server.AllowedOrigins)
			fmt.Printf("  Rate limit: %.1f req/s (burst %d)\n", cfg.Server.RateLimit, cfg.Server.RateBurst)
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.URL))
			fmt.Println()

			fmt.Println("Discovery:")
			fmt.Printf("  Turn timeout:       %s\n", cfg.Discovery.TurnTimeout)
			fmt.Printf("  Idempotency window: %s\n", cfg.Discovery.IdempotencyWindow)
			fmt.Printf("  State TTL:          %s\n", cfg.Discovery.StateTTL)
			fmt.Println()

			fmt.Println("Extractor:")
			fmt.Printf("  URL:     %s\n", cfg.Extractor.BaseURL)
			fmt.Printf("  Model:   %s\n", cfg.Extractor.Model)
			fmt.Printf("  API Key: %s\n", maskSecret(cfg.Extractor.APIKey))
			fmt.Printf("  Status:  %s\n", boolStatus(cfg.IsExtractorConfigured()))
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  KASHEF_SERVER_HOST, KASHEF_SERVER_PORT, KASHEF_ALLOWED_ORIGINS")
			fmt.Println("  KASHEF_POSTGRES_URL")
			fmt.Println("  KASHEF_TURN_TIMEOUT, KASHEF_IDEMPOTENCY_WINDOW, KASHEF_STATE_TTL")
			fmt.Println("  KASHEF_EXTRACTOR_BASE_URL, KASHEF_EXTRACTOR_API_KEY, KASHEF_EXTRACTOR_MODEL")
			fmt.Println("  KASHEF_OTEL_ENABLED, KASHEF_ENVIRONMENT")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Kashef %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func boolStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
