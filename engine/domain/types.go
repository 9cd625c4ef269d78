// Package domain defines core types, labels, and validation for the Verity
// engine. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Domain is a closed-set topical label used to route queries and tag documents.
type Domain string

const (
	DomainTravel     Domain = "travel"
	DomainRealEstate Domain = "real_estate"
	DomainUnknown    Domain = "unknown"
)

// ValidDomains is the set of recognised domain labels.
var ValidDomains = map[Domain]bool{
	DomainTravel: true, DomainRealEstate: true, DomainUnknown: true,
}

// Intent classifies what the user is trying to accomplish with a query.
type Intent string

const (
	IntentVisaInfo        Intent = "visa_info"
	IntentHotelSearch     Intent = "hotel_search"
	IntentFlightSearch    Intent = "flight_search"
	IntentWeather         Intent = "weather"
	IntentItinerary       Intent = "itinerary"
	IntentTravelTips      Intent = "travel_tips"
	IntentDestinationInfo Intent = "destination_info"
	IntentMarketAnalysis  Intent = "market_analysis"
	IntentGeneral         Intent = "general"
)

// Namespace names the logical vector-store partitions. A query against one
// namespace never returns records written to another.
const (
	NamespaceDefault = "default"
	NamespaceReports = "reports"
)

// DomainNamespace returns the per-domain partition name, or "" for unknown.
func DomainNamespace(d Domain) string {
	if d == DomainUnknown || d == "" {
		return ""
	}
	return "domain_" + string(d)
}

// SourceDocument is a document handed to the ingestion pipeline. It is owned
// by the caller and immutable once submitted.
type SourceDocument struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Domain    Domain    `json:"domain,omitempty"`
	Category  string    `json:"category,omitempty"`
	UserScope string    `json:"user_scope,omitempty"`
	Modified  time.Time `json:"modified,omitempty"`
}
