package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"resty.dev/v3"

	"jan-server/services/orchestrator-api/internal/config"
	"jan-server/services/orchestrator-api/internal/infrastructure/auth"
	"jan-server/services/orchestrator-api/internal/infrastructure/logger"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/orchestrator-api/internal/utils/httpclients"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// apiClient is a thin wrapper carrying the caller's identity on every request.
type apiClient struct {
	http     *resty.Client
	user     string
	token    string
	adminKey string
}

func newAPIClient(cmd *cobra.Command) (*apiClient, error) {
	flags := cmd.Flags()
	server, _ := flags.GetString("server")
	user, _ := flags.GetString("user")
	token, _ := flags.GetString("token")
	adminKey, _ := flags.GetString("admin-key")
	timeout, _ := flags.GetDuration("timeout")
	verbose, _ := flags.GetBool("verbose")

	if strings.TrimSpace(server) == "" {
		return nil, fmt.Errorf("--server is required")
	}
	if verbose {
		logger.New(&config.Config{ServiceName: "orchctl", Environment: "cli", LogLevel: "debug", LogFormat: "console"})
	}
	return &apiClient{
		http:     httpclients.NewClient("orchctl", strings.TrimRight(server, "/"), timeout),
		user:     user,
		token:    token,
		adminKey: adminKey,
	}, nil
}

func (c *apiClient) request(cmd *cobra.Command) *resty.Request {
	req := c.http.R().SetContext(cmd.Context())
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	if c.user != "" {
		req.SetHeader(auth.UserIDHeader, c.user)
	}
	return req
}

func (c *apiClient) admin(cmd *cobra.Command) (*resty.Request, error) {
	if c.adminKey == "" {
		return nil, fmt.Errorf("--admin-key or ADMIN_API_KEY is required")
	}
	return c.request(cmd).SetHeader(middlewares.AdminKeyHeader, c.adminKey), nil
}

// check turns a non-2xx response into an error carrying the server message.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	var body platformerrors.HTTPErrorResponse
	if jsonErr := json.Unmarshal(resp.Bytes(), &body); jsonErr == nil && body.Error != nil {
		return fmt.Errorf("%s (%d %s)", body.Error.Message, resp.StatusCode(), body.Error.Type)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
