// Package main implements the assist CLI for manual operations against
// the assistd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the assistd HTTP server
	serverURL string
	// chat flags
	chatMode  string
	chatModel string
	chatUser  string
	chatWeb   bool
	sessionID string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "assist",
	Short: "CLI for assistd HTTP server operations",
	Long: `assist is a command-line interface for the assistd HTTP server.
It provides commands for chatting, rating answers and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "assistd server URL")
	chatCmd.Flags().StringVar(&chatMode, "mode", "normal", "conversation mode (normal, friend, code, creative, research, teacher)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "force a specific model key")
	chatCmd.Flags().StringVar(&chatUser, "user", "cli", "user id")
	chatCmd.Flags().StringVar(&sessionID, "session", "", "session id (new session when empty)")
	chatCmd.Flags().BoolVar(&chatWeb, "web", false, "allow web search")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statsCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a chat message",
	Long: `Send a chat message to the assistd server and print the answer.

Examples:
  # Ask a question
  assist chat "Go dilinde goroutine nedir?"

  # Continue a session in code mode
  assist chat --session s1 --mode code "bu fonksiyonu düzeltir misin?"

  # Read the message from stdin
  echo "merhaba" | assist chat -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

var rateCmd = &cobra.Command{
	Use:   "rate <message-id> <rating>",
	Short: "Rate an answer from 1 to 5",
	Args:  cobra.ExactArgs(2),
	RunE:  runRate,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check assistd server health",
	RunE:  runHealth,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics",
	RunE:  runStats,
}

// ChatRequest matches internal/httpapi/server.go ChatRequest
type ChatRequest struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	Mode         string `json:"mode"`
	ForcedModel  string `json:"forced_model"`
	UseWebSearch bool   `json:"use_web_search"`
}

// FeedbackRequest matches internal/httpapi/server.go FeedbackRequest
type FeedbackRequest struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Rating    int    `json:"rating"`
}

func runChat(cmd *cobra.Command, args []string) error {
	var message string
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		message = strings.TrimSpace(string(content))
	} else {
		message = args[0]
	}

	if message == "" {
		return fmt.Errorf("no message to send")
	}

	body, err := postJSON("/api/v1/chat", ChatRequest{
		UserID:       chatUser,
		SessionID:    sessionID,
		Message:      message,
		Mode:         chatMode,
		ForcedModel:  chatModel,
		UseWebSearch: chatWeb,
	})
	if err != nil {
		return err
	}

	var resp struct {
		Answer    string `json:"answer"`
		ModelKey  string `json:"used_model"`
		SessionID string `json:"session_id"`
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Println(resp.Answer)
	fmt.Fprintf(os.Stderr, "\n[model=%s session=%s message=%s]\n", resp.ModelKey, resp.SessionID, resp.MessageID)
	return nil
}

func runRate(cmd *cobra.Command, args []string) error {
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("rating must be a number: %w", err)
	}

	if _, err := postJSON("/api/v1/feedback", FeedbackRequest{
		UserID:    chatUser,
		MessageID: args[0],
		Rating:    rating,
	}); err != nil {
		return err
	}

	fmt.Println("rating recorded")
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	body, err := getJSON("/health")
	if err != nil {
		return err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("server status: %s\n", resp.Status)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	body, err := getJSON("/api/v1/learning/stats")
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}

	fmt.Println(pretty.String())
	return nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

func postJSON(path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return body, nil
}

func getJSON(path string) ([]byte, error) {
	resp, err := httpClient().Get(serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return body, nil
}
