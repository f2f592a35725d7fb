package services

import (
	"math"
	"testing"

	"github.com/industriq/blackbox/internal/database"
)

func TestEstimateFinancialImpact_MajorIncident(t *testing.T) {
	rate := CostRate{CostPerHour: 10000, Currency: "SAR"}
	impact := EstimateFinancialImpact(database.SeverityMajor, 0.6, 4, rate)

	if impact.EstimatedDowntimeHours != 4 {
		t.Errorf("MAJOR should not scale downtime, got %.1f", impact.EstimatedDowntimeHours)
	}
	if impact.RepairCost != 4000 {
		t.Errorf("expected repair cost 4000, got %.0f", impact.RepairCost)
	}
	if impact.ProductionLoss != 40000 {
		t.Errorf("expected production loss 40000, got %.0f", impact.ProductionLoss)
	}
	if impact.TotalEstimatedCost != 44000 {
		t.Errorf("expected total 44000, got %.0f", impact.TotalEstimatedCost)
	}
	if math.Abs(impact.Confidence-0.48) > 1e-9 {
		t.Errorf("confidence should be top score x 0.8, got %.3f", impact.Confidence)
	}
	if impact.Currency != "SAR" {
		t.Errorf("currency not carried through")
	}
}

func TestEstimateFinancialImpact_SeverityScaling(t *testing.T) {
	rate := CostRate{CostPerHour: 1000, Currency: "SAR"}

	critical := EstimateFinancialImpact(database.SeverityCritical, 0.5, 4, rate)
	if critical.EstimatedDowntimeHours != 6 {
		t.Errorf("CRITICAL should scale downtime x1.5, got %.1f", critical.EstimatedDowntimeHours)
	}

	minor := EstimateFinancialImpact(database.SeverityMinor, 0.5, 4, rate)
	if minor.EstimatedDowntimeHours != 2 {
		t.Errorf("MINOR should scale downtime x0.5, got %.1f", minor.EstimatedDowntimeHours)
	}
}

func TestEstimateCarbonImpact_KnownAssetType(t *testing.T) {
	impact := EstimateCarbonImpact("compressor", 30)

	// 30 events is a 3-hour window at 200 kWh/h.
	if impact.WindowHours != 3 {
		t.Errorf("expected 3 window hours, got %.1f", impact.WindowHours)
	}
	if impact.EnergyUsedKWh != 600 {
		t.Errorf("expected 600 kWh, got %.1f", impact.EnergyUsedKWh)
	}
	if impact.CarbonKg != 240 {
		t.Errorf("expected 240 kg CO2, got %.1f", impact.CarbonKg)
	}
	if impact.EnergyType != "electricity" {
		t.Errorf("expected electricity, got %s", impact.EnergyType)
	}
}

func TestEstimateCarbonImpact_Defaults(t *testing.T) {
	impact := EstimateCarbonImpact("widget", 2)

	// Unknown asset type falls back to the default rate; tiny windows are
	// floored at one hour.
	if impact.WindowHours != 1 {
		t.Errorf("expected floor of 1 window hour, got %.1f", impact.WindowHours)
	}
	if impact.EnergyUsedKWh != 30 {
		t.Errorf("expected default 30 kWh, got %.1f", impact.EnergyUsedKWh)
	}
}
