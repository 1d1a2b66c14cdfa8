package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL string
	cookie  string

	rootCmd = &cobra.Command{
		Use:   "sessionwatch",
		Short: "Watch and renew a back office administrator session",
		Long: `sessionwatch follows the countdown of an administrator session from the
command line. It reports Active, Warning, Critical and Expired transitions and
can renew the session before it runs out.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and runs it.
func Execute() error { return rootCmd.Execute() }

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("BACKOFFICE_URL", "http://localhost:8080"), "back office base URL")
	rootCmd.PersistentFlags().StringVar(&cookie, "cookie", os.Getenv("BACKOFFICE_COOKIE"), `session cookie, e.g. "loggedInSessionId=..."`)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
