package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/requests"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/responses"
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a chat completion request",
	Long: `Send one user message, optionally preceded by a system prompt, and print
the answer. With --stream the answer is printed as it arrives.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringP("model", "m", "", "Model to route to (server default when empty)")
	chatCmd.Flags().String("system", "", "System prompt")
	chatCmd.Flags().StringSlice("tools", nil, "Tools the model may call")
	chatCmd.Flags().Int("max-tool-iterations", 0, "Cap on executed tool calls")
	chatCmd.Flags().Int("max-tokens", 0, "Cap on generated tokens")
	chatCmd.Flags().String("session", "", "Session ID for grouping usage")
	chatCmd.Flags().Bool("stream", false, "Stream the answer")
	chatCmd.Flags().Bool("json", false, "Print the full response body")
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	modelName, _ := flags.GetString("model")
	system, _ := flags.GetString("system")
	tools, _ := flags.GetStringSlice("tools")
	maxIterations, _ := flags.GetInt("max-tool-iterations")
	maxTokens, _ := flags.GetInt("max-tokens")
	session, _ := flags.GetString("session")
	stream, _ := flags.GetBool("stream")
	asJSON, _ := flags.GetBool("json")

	body := requests.ChatCompletionRequest{
		Model:             modelName,
		Tools:             tools,
		MaxToolIterations: maxIterations,
		MaxTokens:         maxTokens,
		SessionID:         session,
		Stream:            stream,
	}
	if system != "" {
		body.Messages = append(body.Messages, requests.ChatMessage{Role: "system", Content: system})
	}
	body.Messages = append(body.Messages, requests.ChatMessage{Role: "user", Content: args[0]})

	if stream {
		return streamChat(cmd, client, body)
	}

	var out responses.ChatCompletion
	resp, err := client.request(cmd).SetBody(body).SetResult(&out).Post("/v1/chat/completions")
	if err := check(resp, err); err != nil {
		return err
	}
	if asJSON {
		return printJSON(out)
	}

	for _, call := range out.ToolCalls {
		status := string(call.Status)
		if call.Error != "" {
			status += ": " + call.Error
		}
		fmt.Fprintf(os.Stderr, "[tool %d] %s (%s)\n", call.ExecutionOrder, call.ToolName, status)
	}
	if len(out.Choices) == 0 {
		return fmt.Errorf("response has no choices")
	}
	fmt.Println(out.Choices[0].Message.Content)
	fmt.Fprintf(os.Stderr, "model=%s tokens=%d cost=%s finish=%s\n",
		out.Model, out.Usage.TotalTokens, out.Usage.Cost, out.Choices[0].FinishReason)
	return nil
}

func streamChat(cmd *cobra.Command, client *apiClient, body requests.ChatCompletionRequest) error {
	resp, err := client.request(cmd).
		SetBody(body).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Post("/v1/chat/completions")
	if err != nil {
		return err
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return fmt.Errorf("empty response")
	}
	defer resp.RawResponse.Body.Close()

	if resp.IsError() {
		data, _ := io.ReadAll(resp.RawResponse.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), strings.TrimSpace(string(data)))
	}
	return printEvents(resp.RawResponse.Body, os.Stdout)
}

// printEvents writes the deltas of an SSE body to out until [DONE].
func printEvents(body io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			_, err := fmt.Fprintln(out)
			return err
		}
		var chunk responses.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			if _, err := fmt.Fprint(out, choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without [DONE]")
}
