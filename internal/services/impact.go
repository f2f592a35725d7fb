package services

import "github.com/industriq/blackbox/internal/database"

// Financial estimation constants. The repair-materials proxy is a flat rate
// per downtime hour; the default downtime applies when no causal rule
// matched.
const (
	DefaultDowntimeHours = 4.0
	RepairCostPerHour    = 1000.0
	DefaultCostPerHour   = 10000.0
	DefaultCurrency      = "SAR"
)

// carbonFactors maps an energy type to kg CO2 per kWh.
var carbonFactors = map[string]float64{
	"electricity": 0.4,
	"natural_gas": 2.0,
	"diesel":      2.68,
	"fuel_oil":    3.1,
	"default":     0.5,
}

// defaultEnergyConsumption maps an asset type to a nominal consumption rate
// in kWh per hour, used as the carbon proxy when no metered data exists.
var defaultEnergyConsumption = map[string]float64{
	"pump":       50,
	"compressor": 200,
	"motor":      75,
	"turbine":    500,
	"separator":  25,
	"vessel":     10,
	"default":    30,
}

// EstimateFinancialImpact derives the downtime cost estimate. Downtime comes
// from the matched rule (or the default), scaled up for CRITICAL incidents
// and down for MINOR ones. Total is the repair-materials proxy plus
// production loss at the resolved hourly rate. Pure function.
func EstimateFinancialImpact(severity database.Severity, topScore float64, downtimeHours float64, rate CostRate) database.FinancialImpact {
	switch severity {
	case database.SeverityCritical:
		downtimeHours *= 1.5
	case database.SeverityMinor:
		downtimeHours *= 0.5
	}

	repairCost := downtimeHours * RepairCostPerHour
	productionLoss := downtimeHours * rate.CostPerHour

	return database.FinancialImpact{
		EstimatedDowntimeHours: downtimeHours,
		CostPerHour:            rate.CostPerHour,
		Currency:               rate.Currency,
		RepairCost:             repairCost,
		ProductionLoss:         productionLoss,
		TotalEstimatedCost:     repairCost + productionLoss,
		Confidence:             topScore * 0.8,
	}
}

// EstimateCarbonImpact derives the energy/emissions proxy from the asset
// type's nominal consumption rate and the size of the analyzed event window.
// Pure function.
func EstimateCarbonImpact(assetType string, windowEventCount int) database.CarbonImpact {
	rate, ok := defaultEnergyConsumption[assetType]
	if !ok {
		rate = defaultEnergyConsumption["default"]
	}

	windowHours := 0.1 * float64(windowEventCount)
	if windowHours < 1 {
		windowHours = 1
	}

	energyUsed := rate * windowHours
	factor := carbonFactors["electricity"]
	carbonKg := energyUsed * factor

	return database.CarbonImpact{
		EnergyUsedKWh: energyUsed,
		CarbonFactor:  factor,
		CarbonKg:      roundScore(carbonKg),
		CarbonTons:    roundScore(carbonKg / 1000),
		EnergyType:    "electricity",
		WindowHours:   windowHours,
	}
}
