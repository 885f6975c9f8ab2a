package dpe

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Threshold is the inclusive upper bound of a class interval, in
// kWh EP/m²/year. Thresholds are ordered best class first; the last
// interval is unbounded.
type Threshold struct {
	Class Class
	Max   float64
}

// RenovationRate is a per-m² renovation cost band in EUR.
type RenovationRate struct {
	LowPerM2  decimal.Decimal
	HighPerM2 decimal.Decimal
}

// Params holds every regulatory constant the calculator uses. All values
// encode law subject to amendment, so they are injected rather than
// hard-coded at call sites; DefaultParams carries the January 2026 tables.
type Params struct {
	// ConversionFactors turn final energy into primary-energy equivalent,
	// per source. Sources absent from the table contribute nothing to the
	// weighted factor.
	ConversionFactors map[EnergySource]float64

	// LegacyElectricityFactor is the pre-2026 electricity factor, kept for
	// reporting the magnitude of the regulatory change.
	LegacyElectricityFactor float64

	// ClassThresholds maps primary energy to a class, best class first.
	ClassThresholds []Threshold

	// RentalBanDates gives the date from which a rental of the given class
	// may no longer be legally let. Classes absent are never banned.
	RentalBanDates map[Class]time.Time

	// EnergyCosts are 2026 unit prices in EUR/kWh. FallbackEnergyCost
	// applies to sources missing from the table.
	EnergyCosts        map[EnergySource]decimal.Decimal
	FallbackEnergyCost decimal.Decimal

	// DepreciationPercent is the estimated market value loss per class.
	// Rentals in F/G are amplified by RentalDepreciationFactor.
	DepreciationPercent      map[Class]float64
	RentalDepreciationFactor float64

	// RenovationRates bound the cost of bringing a class back into
	// compliance. Classes absent need no renovation.
	RenovationRates map[Class]RenovationRate

	// Consumption thresholds (kWh/m²/year) that trigger renovation
	// recommendations.
	HeatingPriorityThreshold  float64
	HotWaterPriorityThreshold float64

	// MaxPriorities caps the recommendation list.
	MaxPriorities int

	// ShareSumTolerance bounds how far the energy-mix shares may deviate
	// from summing to exactly 1 before the input is rejected.
	ShareSumTolerance float64

	// Methodology and Framework label the calculation for traceability.
	Methodology string
	Framework   string
}

// DefaultParams returns the January 2026 regulatory tables.
func DefaultParams() Params {
	return Params{
		ConversionFactors: map[EnergySource]float64{
			SourceElectricity: 1.9,
			SourceGas:         1.0,
			SourceFuelOil:     1.0,
			SourceWood:        0.6,
		},
		LegacyElectricityFactor: 2.3,
		ClassThresholds: []Threshold{
			{Class: ClassA, Max: 70},
			{Class: ClassB, Max: 110},
			{Class: ClassC, Max: 180},
			{Class: ClassD, Max: 250},
			{Class: ClassE, Max: 330},
			{Class: ClassF, Max: 420},
			{Class: ClassG, Max: math.Inf(1)},
		},
		RentalBanDates: map[Class]time.Time{
			ClassG: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			ClassF: time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC),
			ClassE: time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		EnergyCosts: map[EnergySource]decimal.Decimal{
			SourceElectricity: decimal.NewFromFloat(0.2516),
			SourceGas:         decimal.NewFromFloat(0.1121),
			SourceFuelOil:     decimal.NewFromFloat(0.1450),
			SourceWood:        decimal.NewFromFloat(0.0650),
		},
		FallbackEnergyCost: decimal.NewFromFloat(0.15),
		DepreciationPercent: map[Class]float64{
			ClassE: 6.5,
			ClassF: 12.0,
			ClassG: 16.0,
		},
		RentalDepreciationFactor: 1.25,
		RenovationRates: map[Class]RenovationRate{
			ClassE: {LowPerM2: decimal.NewFromInt(150), HighPerM2: decimal.NewFromInt(250)},
			ClassF: {LowPerM2: decimal.NewFromInt(300), HighPerM2: decimal.NewFromInt(500)},
			ClassG: {LowPerM2: decimal.NewFromInt(500), HighPerM2: decimal.NewFromInt(800)},
		},
		HeatingPriorityThreshold:  150,
		HotWaterPriorityThreshold: 50,
		MaxPriorities:             5,
		ShareSumTolerance:         0.01,
		Methodology:               "DPE 3CL-2021 (updated Jan 2026)",
		Framework:                 "Loi Climat et Résilience 2026 + EU EPBD 2024",
	}
}

// validate checks structural integrity of the parameter tables.
func (p Params) validate() error {
	if len(p.ConversionFactors) == 0 {
		return fmt.Errorf("conversion factor table must not be empty")
	}
	if len(p.ClassThresholds) == 0 {
		return fmt.Errorf("class threshold table must not be empty")
	}
	prev := math.Inf(-1)
	for _, threshold := range p.ClassThresholds {
		if !threshold.Class.Valid() {
			return fmt.Errorf("threshold references unknown class %q", threshold.Class)
		}
		if threshold.Max <= prev {
			return fmt.Errorf("class thresholds must be strictly increasing, %q bound %v follows %v",
				threshold.Class, threshold.Max, prev)
		}
		prev = threshold.Max
	}
	if p.ShareSumTolerance < 0 {
		return fmt.Errorf("share sum tolerance must not be negative")
	}
	if p.MaxPriorities <= 0 {
		return fmt.Errorf("max priorities must be positive")
	}
	return nil
}

// Classify maps a primary-energy value to its class. The last interval is
// unbounded, so every non-negative value lands in exactly one class; values
// beyond all bounds fall back to the worst class.
func (p Params) Classify(primaryEnergy float64) Class {
	for _, threshold := range p.ClassThresholds {
		if primaryEnergy <= threshold.Max {
			return threshold.Class
		}
	}
	return p.ClassThresholds[len(p.ClassThresholds)-1].Class
}
