package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"greenchoice-scraper/lib/configutil"
	"greenchoice-scraper/lib/scrapers/greenchoice"
	"greenchoice-scraper/lib/telemetry"
	"greenchoice-scraper/lib/util/serviceutil"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// IntervalMinutes defaults to an hour; the portal only gets fresh
	// meter readings a few times a day anyway.
	IntervalMinutes int `json:"interval_minutes"`

	Influx struct {
		Host   string `json:"host"`
		Token  string `json:"token"`
		Org    string `json:"org"`
		Bucket string `json:"bucket"`
	} `json:"influx"`
}

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "greenchoice-exporter")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	if err == nil {
		defer tel.Shutdown(context.Background())
	}
	telemetry.InitSlog(false)

	cfg, err := configutil.ReadConfig[Config]("exporter.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	interval := time.Hour
	if cfg.IntervalMinutes > 0 {
		interval = time.Duration(cfg.IntervalMinutes) * time.Minute
	}

	influxClient := influxdb2.NewClient(cfg.Influx.Host, cfg.Influx.Token)
	defer influxClient.Close()
	influxWrite := influxClient.WriteAPIBlocking(cfg.Influx.Org, cfg.Influx.Bucket)

	client, err := greenchoice.NewClient(ctx, greenchoice.ClientOptions{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize client", err)
	}
	if err := client.ActivateSession(ctx); err != nil {
		serviceutil.Fatal("failed to log in", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result := client.Update(ctx)
		points := pointsFromResult(result)
		if len(points) == 0 {
			slog.WarnContext(ctx, "update produced no values, nothing to write")
		} else if err := influxWrite.WritePoint(ctx, points...); err != nil {
			slog.ErrorContext(ctx, "failed to write points", "err", err)
		} else {
			slog.InfoContext(ctx, "wrote points", "count", len(points))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var usagePoints = map[string]string{
	greenchoice.KeyElectricityConsumptionHigh:  "electricity",
	greenchoice.KeyElectricityConsumptionLow:   "electricity",
	greenchoice.KeyElectricityConsumptionTotal: "electricity",
	greenchoice.KeyElectricityReturnHigh:       "electricity",
	greenchoice.KeyElectricityReturnLow:        "electricity",
	greenchoice.KeyElectricityReturnTotal:      "electricity",
	greenchoice.KeyGasConsumption:              "gas",
}

var tariffPoints = map[string]string{
	greenchoice.KeyElectricityPriceSingle: "electricity",
	greenchoice.KeyElectricityPriceLow:    "electricity",
	greenchoice.KeyElectricityPriceHigh:   "electricity",
	greenchoice.KeyElectricityReturnPrice: "electricity",
	greenchoice.KeyGasPrice:               "gas",
}

// pointsFromResult turns one update into influx points: usage per product,
// timestamped with the meter reading date, and tariffs timestamped with
// the time of the update.
func pointsFromResult(result greenchoice.Result) []*write.Point {
	now := time.Now()
	measurementDates := map[string]time.Time{
		"electricity": now,
		"gas":         now,
	}
	if date, ok := result[greenchoice.KeyMeasurementDateElectricity].(time.Time); ok {
		measurementDates["electricity"] = date
	}
	if date, ok := result[greenchoice.KeyMeasurementDateGas].(time.Time); ok {
		measurementDates["gas"] = date
	}

	usageFields := map[string]map[string]any{}
	for key, product := range usagePoints {
		if value, ok := result[key]; ok {
			if usageFields[product] == nil {
				usageFields[product] = map[string]any{}
			}
			usageFields[product][key] = value
		}
	}
	tariffFields := map[string]map[string]any{}
	for key, product := range tariffPoints {
		if value, ok := result[key]; ok {
			if tariffFields[product] == nil {
				tariffFields[product] = map[string]any{}
			}
			tariffFields[product][key] = value
		}
	}

	var points []*write.Point
	for product, fields := range usageFields {
		points = append(points, write.NewPoint(
			"energy_usage",
			map[string]string{"product": product},
			fields,
			measurementDates[product],
		))
	}
	for product, fields := range tariffFields {
		points = append(points, write.NewPoint(
			"energy_tariff",
			map[string]string{"product": product},
			fields,
			now,
		))
	}
	return points
}
