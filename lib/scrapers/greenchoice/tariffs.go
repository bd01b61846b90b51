package greenchoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// contractInfo is what the tariff endpoints need to identify the
// connection: the customer, the address, and the per-product contracts.
type contractInfo struct {
	CustomerNumber int
	HouseNumber    int
	ZipCode        string
	Electricity    *contractRecord
	Gas            *contractRecord
}

func (c *Client) updateTariffs(ctx context.Context, result Result) error {
	ctx, span := tracer.Start(ctx, "updateTariffs")
	defer span.End()

	info, err := c.fetchContractInfo(ctx)
	if err != nil {
		return err
	}

	rates, err := c.fetchRates(ctx, info)
	if err != nil {
		return err
	}

	if rates.Stroom != nil {
		result[KeyElectricityPriceSingle] = rates.Stroom.LeveringEnkelAllIn
		result[KeyElectricityPriceLow] = rates.Stroom.LeveringLaagAllIn
		result[KeyElectricityPriceHigh] = rates.Stroom.LeveringHoogAllIn
		result[KeyElectricityReturnPrice] = rates.Stroom.TerugleverVergoeding
	}
	if rates.Gas != nil {
		result[KeyGasPrice] = rates.Gas.LeveringAllIn
	}
	return nil
}

// fetchContractInfo walks the /microbus/init bootstrap document down to
// the first address that has contracts, picking out the electricity and
// gas contract per market segment.
func (c *Client) fetchContractInfo(ctx context.Context) (*contractInfo, error) {
	var payload initPayload
	if err := c.getJSON(ctx, "/microbus/init", &payload); err != nil {
		return nil, err
	}

	for _, customer := range payload.Klantgegevens {
		for _, address := range customer.Adressen {
			if len(address.Contracten) == 0 {
				continue
			}
			info := &contractInfo{
				CustomerNumber: customer.Klantnummer,
				HouseNumber:    address.Huisnummer,
				ZipCode:        address.Postcode,
			}
			for i := range address.Contracten {
				contract := &address.Contracten[i]
				switch contract.Marktsegment {
				case "E":
					info.Electricity = contract
				case "G":
					info.Gas = contract
				}
			}
			return info, nil
		}
	}
	return nil, fmt.Errorf("no contracts in init payload")
}

// fetchRates asks the v2 rates endpoint for the current tariffs, falling
// back to the legacy endpoint for accounts the portal has not migrated
// yet, which answer 404 on the v2 path.
func (c *Client) fetchRates(ctx context.Context, info *contractInfo) (*Rates, error) {
	query := url.Values{}
	query.Set("HouseNumber", strconv.Itoa(info.HouseNumber))
	query.Set("ZipCode", info.ZipCode)
	if info.Electricity != nil {
		query.Set("AgreementIdElectricity", strconv.Itoa(info.Electricity.AgreementId))
		query.Set("ReferenceIdElectricity", strconv.Itoa(info.Electricity.RefId))
	}
	if info.Gas != nil {
		query.Set("AgreementIdGas", strconv.Itoa(info.Gas.AgreementId))
		query.Set("ReferenceIdGas", strconv.Itoa(info.Gas.RefId))
	}
	path := fmt.Sprintf("/api/v2/customers/%d/rates?%s", info.CustomerNumber, query.Encode())

	var rates Rates
	err := c.getJSON(ctx, path, &rates)
	if errors.Is(err, errNotFound) {
		slog.InfoContext(ctx, "rates endpoint unavailable, falling back to legacy tariffs")
		return c.fetchLegacyTariffs(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &rates, nil
}

func (c *Client) fetchLegacyTariffs(ctx context.Context) (*Rates, error) {
	var tariffs tariffsV1
	if err := c.getJSON(ctx, "/api/tariffs", &tariffs); err != nil {
		return nil, err
	}
	rates := tariffs.current()
	return &rates, nil
}
