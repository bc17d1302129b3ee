package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	transcriptAddr string
	chatAddr       string
	userID         string
)

var rootCmd = &cobra.Command{
	Use:   "dws",
	Short: "A CLI client for the transcript and chat services",
	Long: `A command-line interface for uploading deal-call transcripts, following
them through the processing pipeline and asking questions over the
indexed corpus.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&transcriptAddr, "transcript-addr", "http://localhost:8081", "base URL of the transcript service")
	rootCmd.PersistentFlags().StringVar(&chatAddr, "chat-addr", "http://localhost:8082", "base URL of the chat service")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("DWS_USER"), "user id sent with every request (defaults to $DWS_USER)")
}
