package classify

import "github.com/VerityAI/verity-mvp/engine/domain"

// Rule is a weighted keyword or phrase pattern. Single-word patterns match
// whole tokens (with a plural allowance); multi-word phrases match as
// case-insensitive substrings.
type Rule struct {
	Pattern string
	Weight  int
}

func words(ws ...string) []Rule {
	rules := make([]Rule, len(ws))
	for i, w := range ws {
		rules[i] = Rule{Pattern: w, Weight: 1}
	}
	return rules
}

func phrases(ps ...string) []Rule {
	rules := make([]Rule, len(ps))
	for i, p := range ps {
		rules[i] = Rule{Pattern: p, Weight: 2}
	}
	return rules
}

// domainRules scores queries and document snippets against domain labels.
var domainRules = map[domain.Domain][]Rule{
	domain.DomainRealEstate: append(words(
		"property", "housing", "rental", "rent", "apartment", "condo",
		"mortgage", "residential", "realty", "land", "plot", "villa",
		"penthouse", "sqft", "builder", "developer", "construction",
		"emi", "broker", "tenant", "lease", "zoning",
	), phrases(
		"real estate", "home price", "house price", "property market",
		"commercial property", "investment property", "housing demand",
		"housing supply", "property value", "property investment",
		"property price", "housing market", "square feet", "down payment",
	)...),
	domain.DomainTravel: append(words(
		"travel", "trip", "vacation", "holiday", "tour", "flight", "hotel",
		"visa", "passport", "destination", "tourism", "tourist", "itinerary",
		"booking", "airline", "airport", "train", "cruise", "resort",
		"accommodation", "sightseeing", "backpack", "explore", "visit",
		"journey", "festival", "honeymoon", "pilgrimage",
	), phrases(
		"road trip", "budget travel", "luxury travel", "solo travel",
		"family vacation", "weekend getaway", "places to see",
	)...),
}

// intentRules is a disjoint table scoring queries against intent labels.
var intentRules = map[domain.Intent][]Rule{
	domain.IntentVisaInfo:        words("visa", "passport", "document", "requirement", "application"),
	domain.IntentHotelSearch:     words("hotel", "accommodation", "stay", "lodge", "resort", "hostel"),
	domain.IntentFlightSearch:    words("flight", "airline", "fly", "ticket", "booking"),
	domain.IntentWeather:         words("weather", "temperature", "climate", "season", "rain", "monsoon"),
	domain.IntentItinerary:       append(words("itinerary", "plan", "schedule"), phrases("trip plan", "day by day")...),
	domain.IntentTravelTips:      words("tip", "advice", "guide", "safety", "custom", "culture"),
	domain.IntentDestinationInfo: words("attraction", "place", "visit", "destination", "city", "country"),
	domain.IntentMarketAnalysis:  append(words("trend", "forecast", "analysis", "outlook", "appreciation"), phrases("market analysis", "price prediction")...),
}

// freshRules flags queries that likely need up-to-date information.
var freshRules = words("latest", "current", "recent", "today", "now", "new", "2024", "2025", "2026")
