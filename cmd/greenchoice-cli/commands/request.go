package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"greenchoice-scraper/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(requestCmd)
}

var requestCmd = &cobra.Command{
	Use:   "request <name> [json message]",
	Short: "Sends a raw microbus request to the portal and prints the response.",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		var message any
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &message); err != nil {
				serviceutil.Fatal("message is not valid json", err)
			}
		}

		client := createClient(ctx)
		res, err := client.MicrobusRequest(ctx, args[0], message)
		if err != nil {
			serviceutil.Fatal("request failed", err)
		}
		fmt.Println(string(res.Body()))
	},
}
