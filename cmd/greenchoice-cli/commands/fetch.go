package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"greenchoice-scraper/lib/configutil"
	"greenchoice-scraper/lib/restyutil"
	"greenchoice-scraper/lib/scrapers/greenchoice"
	"greenchoice-scraper/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// BaseUrl overrides the production portal, useful against a local stub.
	BaseUrl string `json:"base_url"`
}

var debugDump *string

func init() {
	debugDump = fetchCmd.Flags().String("debug-dump", "", "Directory to dump raw http traffic to.")
	rootCmd.AddCommand(fetchCmd)
}

func createClient(ctx context.Context) *greenchoice.Client {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if *debugDump != "" {
		greenchoice.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(*debugDump))
	}

	client, err := greenchoice.NewClient(ctx, greenchoice.ClientOptions{
		BaseUrl:  cfg.BaseUrl,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize client", err)
	}
	if err := client.ActivateSession(ctx); err != nil {
		serviceutil.Fatal("failed to log in", err)
	}
	return client
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [--debug-dump <dir>]",
	Short: "Logs in and prints the current usage and tariff values.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute*2)
		defer cancel()

		client := createClient(ctx)
		result := client.Update(ctx)

		keys := make([]string, 0, len(result))
		for key := range result {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Metric", "Value"})
		for _, key := range keys {
			value := result[key]
			if date, ok := value.(time.Time); ok {
				value = date.Format(time.DateOnly)
			}
			t.AppendRow(table.Row{key, fmt.Sprint(value)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
