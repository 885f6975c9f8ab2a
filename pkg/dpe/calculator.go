package dpe

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput marks recalculation inputs rejected by validation. Inputs
// are never silently clamped or normalized.
var ErrInvalidInput = errors.New("invalid recalculation input")

// Consumption is the final-energy breakdown of a dwelling, each figure in
// kWh/m²/year.
type Consumption struct {
	Heating   float64 `json:"heating_kwh"`
	HotWater  float64 `json:"hot_water_kwh"`
	Cooling   float64 `json:"cooling_kwh"`
	Lighting  float64 `json:"lighting_kwh"`
	Auxiliary float64 `json:"auxiliary_kwh"`
}

// TotalFinalEnergy sums the five per-use figures.
func (c Consumption) TotalFinalEnergy() float64 {
	return c.Heating + c.HotWater + c.Cooling + c.Lighting + c.Auxiliary
}

// Input carries everything the recalculation needs. EnergyMix shares are
// fractions in [0,1] and must sum to 1 within the configured tolerance.
type Input struct {
	OriginalClass         Class                    `json:"original_class"`
	OriginalPrimaryEnergy float64                  `json:"original_primary_energy"`
	Consumption           Consumption              `json:"consumption"`
	EnergyMix             map[EnergySource]float64 `json:"energy_mix"`
	SurfaceM2             float64                  `json:"surface_m2"`
	IsRental              bool                     `json:"is_rental"`
}

// CostRange bounds an estimated renovation cost in EUR.
type CostRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Metadata records how a result was produced, per the transparency
// requirements applying to automated high-impact determinations.
type Metadata struct {
	CalculatedAt        time.Time `json:"calculated_at"`
	ElectricityFactor   float64   `json:"electricity_factor_used"`
	RegulatoryFramework string    `json:"regulatory_framework"`
	Methodology         string    `json:"methodology"`
	DataSources         []string  `json:"data_sources"`
	ConfidenceLevel     string    `json:"confidence_level"`
}

// Result is the complete DPE 2026 determination for one property.
type Result struct {
	OriginalClass         Class   `json:"original_class"`
	OriginalPrimaryEnergy float64 `json:"original_primary_energy"`

	RecalculatedPrimaryEnergy float64 `json:"recalculated_primary_energy"`
	RecalculatedClass         Class   `json:"recalculated_class"`
	WeightedFactor            float64 `json:"weighted_conversion_factor"`

	IsPassoireThermique bool       `json:"is_passoire_thermique"`
	Urgency             Urgency    `json:"renovation_urgency"`
	RentalBanDate       *time.Time `json:"rental_ban_date,omitempty"`

	AnnualEnergyCost         decimal.Decimal `json:"annual_energy_cost_eur"`
	ValueDepreciationPercent float64         `json:"value_depreciation_percent"`
	RenovationCostRange      CostRange       `json:"renovation_cost_range_eur"`
	RenovationPriorities     []string        `json:"renovation_priorities"`

	RequiresHumanVerification bool     `json:"requires_human_verification"`
	Metadata                  Metadata `json:"calculation_metadata"`
}

// Calculator applies the 2026 regulatory tables. Safe for concurrent use;
// it holds no mutable state.
type Calculator struct {
	params Params
	logger zerolog.Logger
}

// NewCalculator validates the parameter tables and returns a calculator.
func NewCalculator(params Params) (*Calculator, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("dpe: %w", err)
	}
	return &Calculator{
		params: params,
		logger: log.With().Str("component", "dpe").Logger(),
	}, nil
}

// Recalculate runs the full DPE 2026 determination.
func (c *Calculator) Recalculate(input Input) (*Result, error) {
	if err := c.validateInput(input); err != nil {
		return nil, err
	}

	totalFinal := input.Consumption.TotalFinalEnergy()
	weightedFactor := c.weightedFactor(input.EnergyMix)
	recalculated := totalFinal * weightedFactor
	recalculatedClass := c.params.Classify(recalculated)

	isPassoire := recalculatedClass.IsPassoireThermique()
	urgency := c.urgency(recalculatedClass, input.IsRental)

	var banDate *time.Time
	if input.IsRental {
		if date, ok := c.params.RentalBanDates[recalculatedClass]; ok {
			banDate = &date
		}
	}

	result := &Result{
		OriginalClass:         input.OriginalClass,
		OriginalPrimaryEnergy: input.OriginalPrimaryEnergy,

		RecalculatedPrimaryEnergy: recalculated,
		RecalculatedClass:         recalculatedClass,
		WeightedFactor:            weightedFactor,

		IsPassoireThermique: isPassoire,
		Urgency:             urgency,
		RentalBanDate:       banDate,

		AnnualEnergyCost:         c.annualEnergyCost(totalFinal, input.SurfaceM2, input.EnergyMix),
		ValueDepreciationPercent: c.valueDepreciation(recalculatedClass, input.IsRental),
		RenovationCostRange:      c.renovationCostRange(recalculatedClass, input.SurfaceM2),
		RenovationPriorities:     c.renovationPriorities(recalculatedClass, input.Consumption),

		RequiresHumanVerification: isPassoire && input.IsRental &&
			(urgency == UrgencyUrgent || urgency == UrgencyCritical),

		Metadata: c.metadata(input.EnergyMix[SourceElectricity]),
	}

	c.logger.Info().
		Str("original_class", string(input.OriginalClass)).
		Str("recalculated_class", string(recalculatedClass)).
		Float64("primary_energy", recalculated).
		Float64("weighted_factor", weightedFactor).
		Bool("passoire", isPassoire).
		Msg("DPE 2026 recalculation complete")

	return result, nil
}

func (c *Calculator) validateInput(input Input) error {
	if !input.OriginalClass.Valid() {
		return fmt.Errorf("%w: unknown original class %q", ErrInvalidInput, input.OriginalClass)
	}
	if input.OriginalPrimaryEnergy < 0 {
		return fmt.Errorf("%w: original primary energy must not be negative, got %v",
			ErrInvalidInput, input.OriginalPrimaryEnergy)
	}
	if input.SurfaceM2 <= 0 {
		return fmt.Errorf("%w: surface must be positive, got %v", ErrInvalidInput, input.SurfaceM2)
	}

	for use, value := range map[string]float64{
		"heating":   input.Consumption.Heating,
		"hot water": input.Consumption.HotWater,
		"cooling":   input.Consumption.Cooling,
		"lighting":  input.Consumption.Lighting,
		"auxiliary": input.Consumption.Auxiliary,
	} {
		if value < 0 {
			return fmt.Errorf("%w: %s consumption must not be negative, got %v", ErrInvalidInput, use, value)
		}
	}

	if len(input.EnergyMix) == 0 {
		return fmt.Errorf("%w: energy mix must not be empty", ErrInvalidInput)
	}
	sum := 0.0
	for source, share := range input.EnergyMix {
		if share < 0 || share > 1 {
			return fmt.Errorf("%w: share for %q must be in [0,1], got %v", ErrInvalidInput, source, share)
		}
		sum += share
	}
	if math.Abs(sum-1) > c.params.ShareSumTolerance {
		return fmt.Errorf("%w: energy mix shares sum to %v, must sum to 1 within ±%v",
			ErrInvalidInput, sum, c.params.ShareSumTolerance)
	}

	return nil
}

// weightedFactor folds the mix into a single conversion scalar. Sources
// without a regulated factor contribute nothing.
func (c *Calculator) weightedFactor(mix map[EnergySource]float64) float64 {
	factor := 0.0
	for source, share := range mix {
		factor += share * c.params.ConversionFactors[source]
	}
	return factor
}

func (c *Calculator) urgency(class Class, isRental bool) Urgency {
	if !isRental {
		return UrgencyCompliant
	}
	switch class {
	case ClassG:
		return UrgencyCritical
	case ClassF:
		return UrgencyUrgent
	case ClassE:
		return UrgencyWarning
	default:
		return UrgencyCompliant
	}
}

// annualEnergyCost prices the whole-dwelling consumption per source,
// falling back to a flat rate for sources without a published price.
func (c *Calculator) annualEnergyCost(totalFinal, surface float64, mix map[EnergySource]float64) decimal.Decimal {
	totalConsumption := decimal.NewFromFloat(totalFinal * surface)

	cost := decimal.Zero
	for source, share := range mix {
		unitCost, ok := c.params.EnergyCosts[source]
		if !ok {
			unitCost = c.params.FallbackEnergyCost
		}
		cost = cost.Add(totalConsumption.Mul(decimal.NewFromFloat(share)).Mul(unitCost))
	}
	return cost.Round(2)
}

func (c *Calculator) valueDepreciation(class Class, isRental bool) float64 {
	depreciation := c.params.DepreciationPercent[class]
	if isRental && class.IsPassoireThermique() {
		depreciation *= c.params.RentalDepreciationFactor
	}
	return math.Round(depreciation*10) / 10
}

func (c *Calculator) renovationCostRange(class Class, surface float64) CostRange {
	rate, ok := c.params.RenovationRates[class]
	if !ok {
		return CostRange{Min: decimal.Zero, Max: decimal.Zero}
	}
	surfaceDec := decimal.NewFromFloat(surface)
	return CostRange{
		Min: rate.LowPerM2.Mul(surfaceDec).Round(2),
		Max: rate.HighPerM2.Mul(surfaceDec).Round(2),
	}
}

// renovationPriorities builds the ordered action list from threshold rules
// on the consumption breakdown, capped at MaxPriorities.
func (c *Calculator) renovationPriorities(class Class, consumption Consumption) []string {
	priorities := make([]string, 0, c.params.MaxPriorities)

	if consumption.Heating > c.params.HeatingPriorityThreshold {
		priorities = append(priorities,
			"Isolation thermique (combles, murs, planchers)",
			"Remplacement du système de chauffage (pompe à chaleur)")
	}
	if consumption.HotWater > c.params.HotWaterPriorityThreshold {
		priorities = append(priorities, "Chauffe-eau thermodynamique ou solaire")
	}
	if class.IsPassoireThermique() {
		priorities = append(priorities,
			"Remplacement des fenêtres (double/triple vitrage)",
			"Installation d'une VMC double flux")
	}
	priorities = append(priorities, "Panneaux solaires photovoltaïques (autoconsommation)")

	if len(priorities) > c.params.MaxPriorities {
		priorities = priorities[:c.params.MaxPriorities]
	}
	return priorities
}

func (c *Calculator) metadata(electricityShare float64) Metadata {
	confidence := "medium"
	if electricityShare > 0.8 {
		confidence = "high"
	}
	return Metadata{
		CalculatedAt:        time.Now().UTC(),
		ElectricityFactor:   c.params.ConversionFactors[SourceElectricity],
		RegulatoryFramework: c.params.Framework,
		Methodology:         c.params.Methodology,
		DataSources:         []string{"ADEME DPE API", "DVF Gouv"},
		ConfidenceLevel:     confidence,
	}
}
