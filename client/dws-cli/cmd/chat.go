package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

var conversationID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question over your indexed transcripts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		askQuestion(args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recent turns of a conversation",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printJSON(doRequest(http.MethodGet, chatAddr+"/api/v1/chat/history/"+conversationName(), "", nil))
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a conversation's history",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		doRequest(http.MethodDelete, chatAddr+"/api/v1/chat/history/"+conversationName(), "", nil)
		fmt.Println("Conversation cleared.")
	},
}

func init() {
	askCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (defaults to \"default\")")
	historyCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (defaults to \"default\")")
	resetCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (defaults to \"default\")")

	rootCmd.AddCommand(askCmd, historyCmd, resetCmd)
}

func conversationName() string {
	if conversationID == "" {
		return "default"
	}
	return conversationID
}

func askQuestion(question string) {
	payload, err := json.Marshal(map[string]string{
		"question":        question,
		"conversation_id": conversationID,
	})
	if err != nil {
		log.Fatalf("Error creating JSON payload: %v", err)
	}

	resp := doRequest(http.MethodPost, chatAddr+"/api/v1/chat/ask", "application/json", bytes.NewReader(payload))

	var answer models.ChatAnswer
	if err := json.Unmarshal(resp, &answer); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}

	fmt.Println(answer.Answer)
	if answer.Notice != "" {
		fmt.Printf("\n(%s)\n", answer.Notice)
	}
	if answer.ContextUsed > 0 {
		fmt.Printf("\nAnswered from %d passages.\n", answer.ContextUsed)
	}
}
