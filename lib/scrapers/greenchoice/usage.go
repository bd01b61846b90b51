package greenchoice

import (
	"context"
	"fmt"
	"log/slog"

	"greenchoice-scraper/lib/timezone"
)

func (c *Client) updateUsage(ctx context.Context, result Result) error {
	ctx, span := tracer.Start(ctx, "updateUsage")
	defer span.End()

	prefs, err := c.fetchPreferences(ctx)
	if err != nil {
		return err
	}
	profile, err := c.fetchActiveProfile(ctx, prefs.Subject.CustomerNumber)
	if err != nil {
		return err
	}

	readings, err := c.fetchMeterReadings(ctx,
		prefs.Subject.CustomerNumber,
		prefs.Subject.AgreementId,
		timezone.Now().Year(),
	)
	if err != nil {
		return err
	}

	electricity := readings.LastReading(ProductElectricity)
	if electricity == nil {
		slog.WarnContext(ctx, "no electricity readings for the current year")
	} else {
		addElectricityUsage(result, electricity)
	}

	if profile.HasActiveGasSupply {
		gas := readings.LastReading(ProductGas)
		if gas == nil || gas.Gas == nil {
			slog.WarnContext(ctx, "no gas readings for the current year")
		} else {
			result[KeyGasConsumption] = *gas.Gas
			result[KeyMeasurementDateGas] = gas.ReadingDate.Time
		}
	}

	return nil
}

// addElectricityUsage fills in the electricity keys present on the
// reading. Totals only make sense when both the normal and off-peak parts
// came through.
func addElectricityUsage(result Result, reading *Reading) {
	result[KeyMeasurementDateElectricity] = reading.ReadingDate.Time

	if reading.NormalConsumption != nil {
		result[KeyElectricityConsumptionHigh] = *reading.NormalConsumption
	}
	if reading.OffPeakConsumption != nil {
		result[KeyElectricityConsumptionLow] = *reading.OffPeakConsumption
	}
	if reading.NormalConsumption != nil && reading.OffPeakConsumption != nil {
		result[KeyElectricityConsumptionTotal] = *reading.NormalConsumption + *reading.OffPeakConsumption
	}

	if reading.NormalFeedIn != nil {
		result[KeyElectricityReturnHigh] = *reading.NormalFeedIn
	}
	if reading.OffPeakFeedIn != nil {
		result[KeyElectricityReturnLow] = *reading.OffPeakFeedIn
	}
	if reading.NormalFeedIn != nil && reading.OffPeakFeedIn != nil {
		result[KeyElectricityReturnTotal] = *reading.NormalFeedIn + *reading.OffPeakFeedIn
	}
}

func (c *Client) fetchPreferences(ctx context.Context) (*Preferences, error) {
	var prefs Preferences
	if err := c.getJSON(ctx, "/api/v2/Preferences/", &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// fetchActiveProfile finds the profile belonging to the signed-in
// customer. Accounts that manage multiple connections get one profile per
// customer number.
func (c *Client) fetchActiveProfile(ctx context.Context, customerNumber int) (*Profile, error) {
	var profiles []Profile
	if err := c.getJSON(ctx, "/api/v2/Profiles/", &profiles); err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].CustomerNumber == customerNumber {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("no profile for customer %d", customerNumber)
}

func (c *Client) fetchMeterReadings(ctx context.Context, customerNumber, agreementId, year int) (*MeterReadings, error) {
	var readings MeterReadings
	path := fmt.Sprintf("/api/v2/customers/%d/agreements/%d/meter-readings/%d/", customerNumber, agreementId, year)
	if err := c.getJSON(ctx, path, &readings); err != nil {
		return nil, err
	}
	return &readings, nil
}
