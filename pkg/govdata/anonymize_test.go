package govdata

import (
	"testing"
)

func sampleTransaction() Transaction {
	surface := 64.0
	lon, lat := 2.2945, 48.8584
	rooms := 3
	return Transaction{
		ID:           "2025-123456",
		Price:        450000,
		StreetNumber: "12",
		StreetName:   "Rue de Vaugirard",
		PostalCode:   "75015",
		CommuneCode:  "75115",
		CommuneName:  "Paris 15e Arrondissement",
		PropertyType: "Appartement",
		SurfaceM2:    &surface,
		RoomCount:    &rooms,
		Longitude:    &lon,
		Latitude:     &lat,
	}
}

func TestApply_ExactAddressesRetained(t *testing.T) {
	policy := AnonymizationPolicy{
		Granularity:           GranularityPostalCode,
		IncludeExactAddresses: true,
	}

	got := policy.Apply(sampleTransaction())

	if got.StreetNumber != "12" || got.StreetName != "Rue de Vaugirard" {
		t.Error("address fields removed despite IncludeExactAddresses")
	}
}

func TestApply_PostalCodeGranularity(t *testing.T) {
	policy := DefaultAnonymizationPolicy()

	got := policy.Apply(sampleTransaction())

	if got.StreetNumber != "" || got.StreetName != "" {
		t.Errorf("street fields leaked: number=%q name=%q", got.StreetNumber, got.StreetName)
	}
	if got.Longitude == nil || got.Latitude == nil {
		t.Error("coordinates should survive at postal_code granularity")
	}
	if got.PostalCode != "75015" {
		t.Errorf("PostalCode = %q, want 75015", got.PostalCode)
	}
}

func TestApply_CommuneGranularity(t *testing.T) {
	policy := AnonymizationPolicy{Granularity: GranularityCommune}

	got := policy.Apply(sampleTransaction())

	if got.StreetNumber != "" || got.StreetName != "" {
		t.Error("street fields leaked at commune granularity")
	}
	if got.Longitude != nil || got.Latitude != nil {
		t.Error("coordinates should be dropped at commune granularity")
	}
	if got.CommuneCode != "75115" {
		t.Errorf("CommuneCode = %q, want 75115", got.CommuneCode)
	}
}

func TestApply_DepartmentGranularity(t *testing.T) {
	policy := AnonymizationPolicy{Granularity: GranularityDepartment}

	got := policy.Apply(sampleTransaction())

	if got.StreetNumber != "" || got.StreetName != "" {
		t.Error("street fields leaked at department granularity")
	}
	if got.Longitude != nil || got.Latitude != nil {
		t.Error("coordinates should be dropped at department granularity")
	}
	if got.CommuneCode != "" || got.CommuneName != "" {
		t.Error("commune fields should be dropped at department granularity")
	}
	if got.PostalCode != "75" {
		t.Errorf("PostalCode = %q, want department prefix 75", got.PostalCode)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	policy := DefaultAnonymizationPolicy()
	original := sampleTransaction()

	_ = policy.Apply(original)

	if original.StreetNumber != "12" {
		t.Error("Apply mutated its input")
	}
}
