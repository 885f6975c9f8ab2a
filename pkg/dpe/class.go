// Package dpe recalculates French energy performance diagnostics under the
// January 2026 regulatory framework (Loi Climat et Résilience, EU EPBD 2024).
//
// The headline change is the electricity primary-energy conversion factor
// dropping from 2.3 to 1.9, which reclassifies many electrically heated
// properties. The package is pure computation: no I/O, no shared state.
package dpe

import (
	"strings"
)

// Class is a DPE energy performance grade on the A–G scale.
type Class string

const (
	ClassA Class = "A"
	ClassB Class = "B"
	ClassC Class = "C"
	ClassD Class = "D"
	ClassE Class = "E"
	ClassF Class = "F"
	ClassG Class = "G"
)

// Valid reports whether the class is one of the seven grades.
func (c Class) Valid() bool {
	switch c {
	case ClassA, ClassB, ClassC, ClassD, ClassE, ClassF, ClassG:
		return true
	}
	return false
}

// IsPassoireThermique reports whether the class marks a property with very
// poor energy performance, subject to escalating rental restrictions.
func (c Class) IsPassoireThermique() bool {
	return c == ClassF || c == ClassG
}

// Urgency grades how soon a rental property must be renovated to stay
// legally rentable.
type Urgency string

const (
	UrgencyCompliant Urgency = "compliant"
	UrgencyWarning   Urgency = "warning"  // class E rental, ban from 2034
	UrgencyUrgent    Urgency = "urgent"   // class F rental, ban from 2028
	UrgencyCritical  Urgency = "critical" // class G rental, banned since 2025
)

// EnergySource identifies a final-energy carrier in the consumption mix.
type EnergySource string

const (
	SourceElectricity EnergySource = "electricity"
	SourceGas         EnergySource = "gas"
	SourceFuelOil     EnergySource = "fuel_oil"
	SourceWood        EnergySource = "wood"
)

// SourceFromLabel maps an ADEME heating-energy label (free-form French text
// such as "Électricité" or "Gaz naturel") to an energy source. The second
// return value is false when no mapping is known.
func SourceFromLabel(label string) (EnergySource, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(normalized, "électricité"), strings.Contains(normalized, "electricite"):
		return SourceElectricity, true
	case strings.Contains(normalized, "gaz"):
		return SourceGas, true
	case strings.Contains(normalized, "fioul"), strings.Contains(normalized, "fuel"):
		return SourceFuelOil, true
	case strings.Contains(normalized, "bois"):
		return SourceWood, true
	}
	return "", false
}
