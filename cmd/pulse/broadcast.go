package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var broadcastCmd = &cobra.Command{
	Use:     "broadcast <message>",
	Short:   "Send a notification to connected live-stream clients",
	GroupID: "client",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notifType, _ := cmd.Flags().GetString("type")
		users, _ := cmd.Flags().GetString("users")
		dataStr, _ := cmd.Flags().GetString("data")

		body := map[string]any{
			"type":    notifType,
			"message": args[0],
		}
		if users != "" {
			body["targetUsers"] = strings.Split(users, ",")
		}
		if dataStr != "" {
			var data any
			if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
				return fmt.Errorf("invalid --data JSON: %w", err)
			}
			body["data"] = data
		}

		var resp struct {
			Success          bool `json:"success"`
			SentTo           int  `json:"sentTo"`
			TotalConnections int  `json:"totalConnections"`
		}
		if err := doJSON(cmd.Context(), "POST", "/v1/activity/live", body, &resp); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(resp)
			return nil
		}
		fmt.Printf("Sent to %d of %d connections\n", resp.SentTo, resp.TotalConnections)
		return nil
	},
}

func init() {
	broadcastCmd.Flags().String("type", "notification", "notification type")
	broadcastCmd.Flags().String("users", "", "comma-separated target user ids (default: everyone)")
	broadcastCmd.Flags().String("data", "", "extra payload as a JSON document")
}
