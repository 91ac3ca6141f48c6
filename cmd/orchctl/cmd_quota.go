package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/requests"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/responses"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the caller's usage and bill for the current period",
	RunE:  runUsage,
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Operator quota commands",
}

var quotaSetCmd = &cobra.Command{
	Use:   "set [user-id] [tier]",
	Short: "Set a user's tier (free, pro, enterprise)",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuotaSet,
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new period for every expired quota",
	RunE:  runQuotaReset,
}

var auditCmd = &cobra.Command{
	Use:   "audit [user-id]",
	Short: "List a user's newest audit entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func init() {
	quotaCmd.AddCommand(quotaSetCmd)
	quotaCmd.AddCommand(quotaResetCmd)

	auditCmd.Flags().Int("limit", 20, "Number of entries")
	auditCmd.Flags().Bool("json", false, "Print entries with their tool call traces")
}

func runUsage(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	var out responses.UsageSummary
	resp, err := client.request(cmd).SetResult(&out).Get("/v1/usage")
	if err := check(resp, err); err != nil {
		return err
	}

	fmt.Printf("user:      %s (%s)\n", out.UserID, out.Tier)
	fmt.Printf("period:    %s .. %s\n", out.PeriodStart, out.PeriodEnd)
	fmt.Printf("used:      %d / %d (%.2f%%)\n", out.TokensUsed, out.MonthlyLimit, out.PercentUsed)
	fmt.Printf("remaining: %d\n", out.Remaining)
	fmt.Printf("bill:      %s base + %s overage (%d tokens) = %s\n", out.BaseCost, out.OverageCost, out.OverageTokens, out.Total)
	return nil
}

func runQuotaSet(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	req, err := client.admin(cmd)
	if err != nil {
		return err
	}
	var out responses.QuotaResponse
	resp, err := req.
		SetBody(requests.SetTierRequest{Tier: args[1]}).
		SetResult(&out).
		SetPathParam("user_id", args[0]).
		Put("/v1/admin/quotas/{user_id}")
	if err := check(resp, err); err != nil {
		return err
	}
	fmt.Printf("✓ %s is now %s (limit %d, used %d)\n", out.UserID, out.Tier, out.MonthlyLimit, out.TokensUsed)
	return nil
}

func runQuotaReset(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	req, err := client.admin(cmd)
	if err != nil {
		return err
	}
	var out responses.ResetResponse
	resp, err := req.SetResult(&out).Post("/v1/admin/quotas/reset")
	if err := check(resp, err); err != nil {
		return err
	}
	fmt.Printf("✓ reset %d quota(s)\n", out.Reset)
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	req, err := client.admin(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	var out responses.AuditList
	resp, err := req.
		SetQueryParam("user_id", args[0]).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/v1/admin/audit")
	if err := check(resp, err); err != nil {
		return err
	}
	if asJSON {
		return printJSON(out.Data)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tREQUEST\tMODEL\tSTATUS\tTOKENS\tTOOLS\tFALLBACK")
	for _, e := range out.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%t\n",
			e.CreatedAt.Format(time.RFC3339), e.RequestID, e.Model, e.Status,
			e.PromptTokens+e.CompletionTokens, len(e.ToolCalls), e.FallbackUsed)
	}
	return w.Flush()
}
