package greenchoice

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"greenchoice-scraper/lib/timezone"

	"github.com/google/uuid"
)

// Product types as they appear in the meter readings payload.
const (
	ProductElectricity = "stroom"
	ProductGas         = "gas"
)

// Reading timestamps come without a zone designator and are meant to be
// read in the provider's local time.
const readingDateLayout = "2006-01-02T15:04:05"

type ReadingDate struct {
	time.Time
}

func (d *ReadingDate) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.ParseInLocation(readingDateLayout, s, timezone.Location)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return fmt.Errorf("parse reading date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// Profile is one entry of the /api/v2/Profiles payload.
type Profile struct {
	CustomerNumber             int    `json:"customerNumber"`
	AgreementId                int    `json:"agreementId"`
	RoleName                   string `json:"roleName"`
	Name                       string `json:"name"`
	Street                     string `json:"street"`
	HouseNumber                int    `json:"houseNumber"`
	PostalCode                 string `json:"postalCode"`
	City                       string `json:"city"`
	EnergySupplyStatus         string `json:"energySupplyStatus"`
	HasActiveGasSupply         bool   `json:"hasActiveGasSupply"`
	HasActiveElectricitySupply bool   `json:"hasActiveElectricitySupply"`
}

// Preferences is the /api/v2/Preferences payload; its subject carries the
// customer and agreement identifiers every other endpoint keys off of.
type Preferences struct {
	AccountId uuid.UUID          `json:"accountId"`
	Subject   PreferencesSubject `json:"subject"`
}

type PreferencesSubject struct {
	CustomerNumber int `json:"customerNumber"`
	AgreementId    int `json:"agreementId"`
}

// MeterReadings is the
// /api/v2/customers/{customer}/agreements/{agreement}/meter-readings/{year}
// payload: readings grouped per product type, then per month.
type MeterReadings struct {
	ProductTypes []MeterProduct `json:"productTypes"`
}

type MeterProduct struct {
	ProductType string       `json:"productType"`
	Months      []MeterMonth `json:"months"`
}

type MeterMonth struct {
	Month    int       `json:"month"`
	Readings []Reading `json:"readings"`
}

type Reading struct {
	ReadingDate        ReadingDate `json:"readingDate"`
	NormalConsumption  *float64    `json:"normalConsumption"`
	OffPeakConsumption *float64    `json:"offPeakConsumption"`
	NormalFeedIn       *float64    `json:"normalFeedIn"`
	OffPeakFeedIn      *float64    `json:"offPeakFeedIn"`
	Gas                *float64    `json:"gas"`
}

// LastReading returns the reading with the latest reading date inside the
// most recent month that has readings at all, for the given product type.
// Months with no readings yet (the portal pre-creates them) are skipped.
func (m MeterReadings) LastReading(productType string) *Reading {
	for _, product := range m.ProductTypes {
		if !strings.EqualFold(product.ProductType, productType) {
			continue
		}
		months := slices.Clone(product.Months)
		slices.SortFunc(months, func(a, b MeterMonth) int {
			return b.Month - a.Month
		})
		for _, month := range months {
			if len(month.Readings) == 0 {
				continue
			}
			readings := slices.Clone(month.Readings)
			slices.SortFunc(readings, func(a, b Reading) int {
				return b.ReadingDate.Compare(a.ReadingDate.Time)
			})
			return &readings[0]
		}
	}
	return nil
}

// initPayload is the /microbus/init bootstrap document. Only the nested
// customer/address/contract records are of interest, the rest of the
// document changes too often to model.
type initPayload struct {
	Klantgegevens []customerRecord `json:"klantgegevens"`
}

type customerRecord struct {
	Klantnummer int             `json:"klantnummer"`
	Adressen    []addressRecord `json:"adressen"`
}

type addressRecord struct {
	Huisnummer int              `json:"huisnummer"`
	Postcode   string           `json:"postcode"`
	Contracten []contractRecord `json:"contracten"`
}

// contractRecord ties an address to a supply contract. Marktsegment
// distinguishes electricity ("E") from gas ("G").
type contractRecord struct {
	RefId        int    `json:"refId"`
	AgreementId  int    `json:"agreementId"`
	Marktsegment string `json:"marktsegment"`
}

// Rates is the normalized tariff document both parser variants produce.
// The portal has drifted between "AllIn" and "Allin" field casing over the
// years; encoding/json matches keys case-insensitively, which absorbs that.
type Rates struct {
	Stroom *ElectricityTariff `json:"stroom"`
	Gas    *GasTariff         `json:"gas"`
}

type ElectricityTariff struct {
	LeveringEnkelAllIn   float64 `json:"leveringEnkelAllIn"`
	LeveringLaagAllIn    float64 `json:"leveringLaagAllIn"`
	LeveringHoogAllIn    float64 `json:"leveringHoogAllIn"`
	TerugleverVergoeding float64 `json:"terugleverVergoeding"`
}

type GasTariff struct {
	LeveringAllIn float64 `json:"leveringAllIn"`
}

// tariffsV1 is the legacy /api/tariffs payload. Newer revisions of the
// legacy endpoint wrap the current period in a "huidig" object, older ones
// put the tariffs at the top level.
type tariffsV1 struct {
	Huidig *Rates `json:"huidig"`
	Rates
}

func (t tariffsV1) current() Rates {
	if t.Huidig != nil {
		return *t.Huidig
	}
	return t.Rates
}
