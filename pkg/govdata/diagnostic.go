package govdata

import (
	"encoding/json"
	"time"
)

// EnergyBreakdown carries the per-use final energy figures of a diagnostic
// (kWh/m²/year). Posts the provider omits are zero.
type EnergyBreakdown struct {
	Heating   float64 `json:"conso_chauffage"`
	HotWater  float64 `json:"conso_ecs"`
	Cooling   float64 `json:"conso_refroidissement"`
	Lighting  float64 `json:"conso_eclairage"`
	Auxiliary float64 `json:"conso_auxiliaires"`
}

// Diagnostic is an energy-performance assessment from the ADEME DPE
// registry. Immutable after construction.
type Diagnostic struct {
	ID               string          `json:"n_dpe"`
	IssuedAt         time.Time       `json:"date_etablissement_dpe"`
	EnergyClass      string          `json:"classe_consommation_energie"`
	GHGClass         string          `json:"classe_estimation_ges"`
	PrimaryEnergy    float64         `json:"consommation_energie"`
	GHGEmissions     float64         `json:"estimation_ges"`
	PostalCode       string          `json:"code_postal"`
	BuildingType     string          `json:"type_batiment"`
	ConstructionYear string          `json:"annee_construction,omitempty"`
	SurfaceM2        float64         `json:"surface_habitable"`
	HeatingEnergy    string          `json:"type_energie_principale_chauffage"`
	HeatingSystem    string          `json:"type_installation_chauffage,omitempty"`
	Breakdown        EnergyBreakdown `json:"breakdown"`
}

// parseDiagnostic decodes one raw ADEME DPE record. The registry publishes
// flat field maps with accented column names.
func parseDiagnostic(raw json.RawMessage) (Diagnostic, error) {
	fields, err := decodeFieldMap(raw)
	if err != nil {
		return Diagnostic{}, err
	}

	id, err := fields.requiredString("N°DPE")
	if err != nil {
		return Diagnostic{}, err
	}
	issuedAt, err := fields.requiredDate("Date_établissement_DPE")
	if err != nil {
		return Diagnostic{}, err
	}
	energyClass, err := fields.requiredString("Classe_consommation_énergie")
	if err != nil {
		return Diagnostic{}, err
	}
	primaryEnergy, err := fields.requiredFloat("Consommation_énergie")
	if err != nil {
		return Diagnostic{}, err
	}
	postalCode, err := fields.requiredString("Code_postal_(BAN)")
	if err != nil {
		return Diagnostic{}, err
	}
	surface, err := fields.requiredFloat("Surface_habitable_logement")
	if err != nil {
		return Diagnostic{}, err
	}

	return Diagnostic{
		ID:               id,
		IssuedAt:         issuedAt,
		EnergyClass:      energyClass,
		GHGClass:         fields.optionalString("Classe_estimation_GES"),
		PrimaryEnergy:    primaryEnergy,
		GHGEmissions:     fields.floatOrZero("Estimation_GES"),
		PostalCode:       postalCode,
		BuildingType:     fields.optionalString("Type_bâtiment"),
		ConstructionYear: fields.optionalString("Année_construction"),
		SurfaceM2:        surface,
		HeatingEnergy:    fields.optionalString("Type_énergie_principale_chauffage"),
		HeatingSystem:    fields.optionalString("Type_installation_chauffage"),
		Breakdown: EnergyBreakdown{
			Heating:   fields.floatOrZero("Conso_chauffage_é_finale"),
			HotWater:  fields.floatOrZero("Conso_ECS_é_finale"),
			Cooling:   fields.floatOrZero("Conso_refroidissement_é_finale"),
			Lighting:  fields.floatOrZero("Conso_éclairage_é_finale"),
			Auxiliary: fields.floatOrZero("Conso_auxiliaires_é_finale"),
		},
	}, nil
}
