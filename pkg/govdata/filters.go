package govdata

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TransactionFilters narrows a DVF transaction query. Zero values mean
// "not filtered". Limit caps the number of records returned; zero uses the
// client default.
type TransactionFilters struct {
	PostalCode   string
	CommuneCode  string
	DateMin      time.Time
	DateMax      time.Time
	PropertyType string
	Limit        int
}

// queryParams builds the DVF provider filter expression. Filters translate
// into a single "where" clause; paging parameters are added per page by the
// dataset descriptor.
func (f TransactionFilters) queryParams() url.Values {
	params := url.Values{}

	var where []string
	if f.PostalCode != "" {
		where = append(where, fmt.Sprintf("code_postal='%s'", f.PostalCode))
	}
	if f.CommuneCode != "" {
		where = append(where, fmt.Sprintf("code_commune='%s'", f.CommuneCode))
	}
	if !f.DateMin.IsZero() {
		where = append(where, fmt.Sprintf("date_mutation>='%s'", f.DateMin.Format("2006-01-02")))
	}
	if !f.DateMax.IsZero() {
		where = append(where, fmt.Sprintf("date_mutation<='%s'", f.DateMax.Format("2006-01-02")))
	}
	if f.PropertyType != "" {
		where = append(where, fmt.Sprintf("type_local='%s'", f.PropertyType))
	}
	if len(where) > 0 {
		params.Set("where", strings.Join(where, " AND "))
	}

	return params
}

// DiagnosticFilters narrows an ADEME DPE query. Zero values mean
// "not filtered".
type DiagnosticFilters struct {
	PostalCode   string
	EnergyClass  string
	BuildingType string
	DateMin      time.Time
	Limit        int
}

// queryParams builds the ADEME provider filter expression as a combined
// "q" query.
func (f DiagnosticFilters) queryParams() url.Values {
	params := url.Values{}

	var query []string
	if f.PostalCode != "" {
		query = append(query, fmt.Sprintf("Code_postal_(BAN):%s", f.PostalCode))
	}
	if f.EnergyClass != "" {
		query = append(query, fmt.Sprintf("Classe_consommation_énergie:%s", f.EnergyClass))
	}
	if f.BuildingType != "" {
		query = append(query, fmt.Sprintf("Type_bâtiment:%s", f.BuildingType))
	}
	if !f.DateMin.IsZero() {
		query = append(query, fmt.Sprintf("Date_établissement_DPE:>=%s", f.DateMin.Format("2006-01-02")))
	}
	if len(query) > 0 {
		params.Set("q", strings.Join(query, " AND "))
	}

	return params
}
