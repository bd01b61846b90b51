package greenchoice

// Keys of the result mapping. Values are float64 except the two
// measurement date keys, which hold time.Time.
const (
	KeyElectricityConsumptionHigh  = "electricity_consumption_high"
	KeyElectricityConsumptionLow   = "electricity_consumption_low"
	KeyElectricityConsumptionTotal = "electricity_consumption_total"
	KeyElectricityReturnHigh       = "electricity_return_high"
	KeyElectricityReturnLow        = "electricity_return_low"
	KeyElectricityReturnTotal      = "electricity_return_total"
	KeyGasConsumption              = "gas_consumption"

	KeyElectricityPriceSingle = "electricity_price_single"
	KeyElectricityPriceLow    = "electricity_price_low"
	KeyElectricityPriceHigh   = "electricity_price_high"
	KeyElectricityReturnPrice = "electricity_return_price"
	KeyGasPrice               = "gas_price"

	KeyMeasurementDateElectricity = "measurement_date_electricity"
	KeyMeasurementDateGas         = "measurement_date_gas"
)

// Result is rebuilt from scratch on every Update call. Metric groups that
// fail to fetch or parse simply leave their keys out, they never abort the
// rest of the update.
type Result map[string]any
