// Package main implements the promptctl CLI for manual operations against
// the promptd admin HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the promptd admin HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "promptctl",
	Short: "CLI for promptd admin server operations",
	Long: `promptctl is a command-line interface for interacting with the promptd
admin HTTP server. It provides commands for inspecting sessions, listing
prompts, scrubbing secrets, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9190", "promptd admin server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(scrubCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check promptd server health",
	Long: `Check the health status of the promptd admin HTTP server.

Examples:
  # Check health
  promptctl health

  # Check health on a different server
  promptctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// promptsCmd lists catalog prompts
var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List prompt definitions from the catalog",
	Long: `List the prompt definitions the daemon currently serves.

Examples:
  promptctl prompts`,
	RunE: runPrompts,
}

// sessionCmd shows one session's state
var sessionCmd = &cobra.Command{
	Use:   "session <id>",
	Short: "Show a session's chain progress and review state",
	Long: `Show a session's chain progress, retry budget, and pending review.

Examples:
  promptctl session chain-code-review-1a2b3c`,
	Args: cobra.ExactArgs(1),
	RunE: runSession,
}

// scrubCmd scrubs secrets from files or stdin
var scrubCmd = &cobra.Command{
	Use:   "scrub [file]",
	Short: "Scrub secrets from a file or stdin",
	Long: `Scrub secrets from a file or stdin using the promptd server.

Examples:
  # Scrub a file
  promptctl scrub .env

  # Scrub from stdin
  cat output.log | promptctl scrub -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScrub,
}

// HealthResponse matches internal/httpapi HealthResponse.
type HealthResponse struct {
	Status string `json:"status"`
}

// PromptSummary matches internal/httpapi PromptSummary.
type PromptSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	IsChain  bool   `json:"is_chain"`
	Steps    int    `json:"steps"`
}

// PromptListResponse matches internal/httpapi PromptListResponse.
type PromptListResponse struct {
	Prompts []PromptSummary `json:"prompts"`
	Count   int             `json:"count"`
}

// SessionResponse matches internal/httpapi SessionResponse.
type SessionResponse struct {
	ID            string   `json:"id"`
	ChainID       string   `json:"chain_id"`
	Status        string   `json:"status"`
	CurrentStep   int      `json:"current_step"`
	TotalSteps    int      `json:"total_steps"`
	AttemptCount  int      `json:"attempt_count"`
	MaxAttempts   int      `json:"max_attempts"`
	ReviewPending bool     `json:"review_pending"`
	ReviewGateIDs []string `json:"review_gate_ids,omitempty"`
}

// ScrubRequest matches internal/httpapi ScrubRequest.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse matches internal/httpapi ScrubResponse.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp HealthResponse
	if err := getJSON("/healthz", &resp); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", resp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

func runPrompts(cmd *cobra.Command, args []string) error {
	var resp PromptListResponse
	if err := getJSON("/v1/prompts", &resp); err != nil {
		return err
	}

	for _, p := range resp.Prompts {
		kind := "single"
		if p.IsChain {
			kind = fmt.Sprintf("chain (%d steps)", p.Steps)
		}
		fmt.Printf("%-24s %-10s %s\n", p.ID, kind, p.Name)
	}
	fmt.Fprintf(os.Stderr, "%d prompts\n", resp.Count)
	return nil
}

func runSession(cmd *cobra.Command, args []string) error {
	var resp SessionResponse
	if err := getJSON("/v1/sessions/"+args[0], &resp); err != nil {
		return err
	}

	fmt.Printf("Session:   %s\n", resp.ID)
	fmt.Printf("Chain:     %s\n", resp.ChainID)
	fmt.Printf("Status:    %s\n", resp.Status)
	fmt.Printf("Progress:  step %d of %d\n", resp.CurrentStep, resp.TotalSteps)
	fmt.Printf("Attempts:  %d of %d\n", resp.AttemptCount, resp.MaxAttempts)
	if resp.ReviewPending {
		fmt.Printf("Review:    pending (gates: %v)\n", resp.ReviewGateIDs)
	}
	return nil
}

func runScrub(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	if len(content) == 0 {
		return fmt.Errorf("no content to scrub")
	}

	reqJSON, err := json.Marshal(ScrubRequest{Content: string(content)})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + "/v1/scrub"
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var scrubResp ScrubResponse
	if err := json.NewDecoder(resp.Body).Decode(&scrubResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Print(scrubResp.Content)
	if scrubResp.FindingsCount > 0 {
		fmt.Fprintf(os.Stderr, "\n[promptctl] Scrubbed %d secret(s)\n", scrubResp.FindingsCount)
	}
	return nil
}

// getJSON performs a GET against the admin server and decodes the JSON body.
func getJSON(path string, into any) error {
	url := serverURL + path

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
