package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/carshare/pulse/internal/model"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Read tracked activity history from the server",
	GroupID: "client",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if v, _ := cmd.Flags().GetString("user"); v != "" {
			q.Set("userId", v)
		}
		if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
			q.Set("limit", strconv.Itoa(v))
		}
		if v, _ := cmd.Flags().GetInt("offset"); v > 0 {
			q.Set("offset", strconv.Itoa(v))
		}
		if v, _ := cmd.Flags().GetString("start"); v != "" {
			q.Set("startDate", v)
		}
		if v, _ := cmd.Flags().GetString("end"); v != "" {
			q.Set("endDate", v)
		}
		if v, _ := cmd.Flags().GetString("actions"); v != "" {
			q.Set("actions", v)
		}
		if v, _ := cmd.Flags().GetString("resources"); v != "" {
			q.Set("resources", v)
		}
		if v, _ := cmd.Flags().GetString("severity"); v != "" {
			q.Set("severity", v)
		}

		var resp struct {
			Activities []*model.Activity `json:"activities"`
			Total      int               `json:"total"`
		}
		if err := doJSON(cmd.Context(), "GET", "/v1/activity/track?"+q.Encode(), nil, &resp); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printActivityTable(resp.Activities, resp.Total)
		return nil
	},
}

func init() {
	historyCmd.Flags().String("user", "", "filter by actor id")
	historyCmd.Flags().Int("limit", 50, "page size (max 100)")
	historyCmd.Flags().Int("offset", 0, "page offset")
	historyCmd.Flags().String("start", "", "earliest timestamp (RFC 3339 or YYYY-MM-DD)")
	historyCmd.Flags().String("end", "", "latest timestamp (RFC 3339 or YYYY-MM-DD)")
	historyCmd.Flags().String("actions", "", "comma-separated action filter")
	historyCmd.Flags().String("resources", "", "comma-separated resource filter")
	historyCmd.Flags().String("severity", "", "minimum-interest severity filter")
}
