package govdata

import (
	"encoding/json"
	"time"
)

// Transaction is a property sale recorded in the DVF (Demandes de Valeurs
// Foncières) database. Immutable after construction; the street-level
// fields are removed once by the anonymization policy, never restored.
type Transaction struct {
	ID           string    `json:"id_mutation"`
	Date         time.Time `json:"date_mutation"`
	Nature       string    `json:"nature_mutation"`
	Price        float64   `json:"valeur_fonciere"`
	StreetNumber string    `json:"adresse_numero,omitempty"`
	StreetName   string    `json:"adresse_nom_voie,omitempty"`
	PostalCode   string    `json:"code_postal"`
	CommuneCode  string    `json:"code_commune"`
	CommuneName  string    `json:"nom_commune"`
	PropertyType string    `json:"type_local"`
	SurfaceM2    *float64  `json:"surface_reelle_bati,omitempty"`
	RoomCount    *int      `json:"nombre_pieces_principales,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
}

// parseTransaction decodes one raw DVF record. DVF wraps the payload in a
// "fields" object. Required fields missing or malformed fail the record.
func parseTransaction(raw json.RawMessage) (Transaction, error) {
	outer, err := decodeFieldMap(raw)
	if err != nil {
		return Transaction{}, err
	}
	fields, err := outer.unwrap("fields")
	if err != nil {
		return Transaction{}, err
	}

	id, err := fields.requiredString("id_mutation")
	if err != nil {
		return Transaction{}, err
	}
	date, err := fields.requiredDate("date_mutation")
	if err != nil {
		return Transaction{}, err
	}
	price, err := fields.requiredFloat("valeur_fonciere")
	if err != nil {
		return Transaction{}, err
	}
	postalCode, err := fields.requiredString("code_postal")
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		ID:           id,
		Date:         date,
		Nature:       fields.optionalString("nature_mutation"),
		Price:        price,
		StreetNumber: fields.optionalString("adresse_numero"),
		StreetName:   fields.optionalString("adresse_nom_voie"),
		PostalCode:   postalCode,
		CommuneCode:  fields.optionalString("code_commune"),
		CommuneName:  fields.optionalString("nom_commune"),
		PropertyType: fields.optionalString("type_local"),
		SurfaceM2:    fields.optionalFloat("surface_reelle_bati"),
		RoomCount:    fields.optionalInt("nombre_pieces_principales"),
		Longitude:    fields.optionalFloat("longitude"),
		Latitude:     fields.optionalFloat("latitude"),
	}, nil
}
