package govdata

// Granularity is the location precision retained after anonymization.
type Granularity string

const (
	// GranularityPostalCode keeps postal code, commune, and coordinates.
	GranularityPostalCode Granularity = "postal_code"

	// GranularityCommune keeps postal code and commune, drops coordinates.
	GranularityCommune Granularity = "commune"

	// GranularityDepartment keeps only the two-digit department prefix of
	// the postal code; commune fields and coordinates are dropped.
	GranularityDepartment Granularity = "department"
)

// AnonymizationPolicy controls how much location detail survives in
// transaction records returned to callers. The policy is applied exactly
// once, at fetch time, before caching typed results or exposing them.
type AnonymizationPolicy struct {
	Granularity           Granularity `json:"granularity"`
	IncludeExactAddresses bool        `json:"include_exact_addresses"`
}

// DefaultAnonymizationPolicy keeps postal-code precision without street
// addresses, which is the privacy-by-design baseline.
func DefaultAnonymizationPolicy() AnonymizationPolicy {
	return AnonymizationPolicy{
		Granularity:           GranularityPostalCode,
		IncludeExactAddresses: false,
	}
}

// Apply returns a copy of the transaction with location detail removed
// according to the policy. Removal is one-way; nothing is re-added later.
func (p AnonymizationPolicy) Apply(t Transaction) Transaction {
	if p.IncludeExactAddresses {
		return t
	}

	t.StreetNumber = ""
	t.StreetName = ""

	switch p.Granularity {
	case GranularityCommune:
		t.Longitude = nil
		t.Latitude = nil
	case GranularityDepartment:
		t.Longitude = nil
		t.Latitude = nil
		t.CommuneCode = ""
		t.CommuneName = ""
		if len(t.PostalCode) > 2 {
			t.PostalCode = t.PostalCode[:2]
		}
	}

	return t
}
