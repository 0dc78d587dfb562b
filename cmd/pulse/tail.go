package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carshare/pulse/internal/model"
	"github.com/carshare/pulse/internal/ui"
)

var tailCmd = &cobra.Command{
	Use:     "tail",
	Short:   "Follow the live activity stream",
	GroupID: "client",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for flag, param := range map[string]string{
			"severity":  "severity",
			"actions":   "actions",
			"resources": "resources",
			"users":     "userIds",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				q.Set(param, v)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		req, err := http.NewRequestWithContext(ctx, "GET", httpURL+"/v1/activity/live?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/event-stream")
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		err = readStream(resp.Body)
		if ctx.Err() != nil {
			return nil // interrupted by the user
		}
		return err
	},
}

func init() {
	tailCmd.Flags().String("severity", "", "comma-separated severity filter")
	tailCmd.Flags().String("actions", "", "comma-separated action filter")
	tailCmd.Flags().String("resources", "", "comma-separated resource filter")
	tailCmd.Flags().String("users", "", "comma-separated actor id filter")
}

// readStream consumes SSE frames until the connection closes.
func readStream(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				printFrame(eventName, data)
			}
			eventName, data = "", ""
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		// id: lines are ignored; this client does not reconnect.
	}
	return scanner.Err()
}

func printFrame(eventName, data string) {
	if jsonOutput {
		fmt.Println(data)
		return
	}

	var msg struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
		Timestamp string `json:"timestamp"`
		Message   string `json:"message"`
		Data      struct {
			ActorID     string         `json:"actor_id"`
			Action      model.Action   `json:"action"`
			Resource    string         `json:"resource"`
			Severity    model.Severity `json:"severity"`
			Description string         `json:"description"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		fmt.Println(data)
		return
	}

	useColor := ui.ShouldUseColor()
	switch eventName {
	case "activity", "system":
		p := msg.Data
		fmt.Printf("%s %s %s %s %s %s\n",
			msg.Timestamp,
			ui.ColorSeverity(p.Severity, string(p.Severity), useColor),
			msg.EventType, p.Action, p.Resource, p.ActorID)
	case "notification":
		fmt.Printf("%s notification: %s\n", msg.Timestamp, msg.Message)
	case "connection":
		fmt.Printf("connected (%s)\n", msg.Timestamp)
	case "heartbeat":
		// quiet
	default:
		fmt.Println(data)
	}
}
