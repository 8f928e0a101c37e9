package catalog

// DefaultEntries is a small built-in slate of known multifamily property
// management companies, used to seed a run before any Agent call is made.
// A production deployment would load this from the same CRM export the
// Tool Gateway's suppression queries hit; this core only needs a non-empty
// starting catalog to exercise the seed-before-agent ordering.
var DefaultEntries = []Entry{
	{
		Name:          "Greystar Real Estate Partners",
		Website:       "https://www.greystar.com",
		Domain:        "greystar.com",
		State:         "SC",
		City:          "Charleston",
		PMS:           "RealPage",
		UnitsEstimate: 800000,
		Description:   "Large national multifamily owner-operator and property manager.",
	},
	{
		Name:          "Camden Property Trust",
		Website:       "https://www.camdenliving.com",
		Domain:        "camdenliving.com",
		State:         "TX",
		City:          "Houston",
		PMS:           "Yardi",
		UnitsEstimate: 60000,
		Description:   "Publicly traded multifamily REIT.",
	},
	{
		Name:          "Cortland",
		Website:       "https://cortland.com",
		Domain:        "cortland.com",
		State:         "GA",
		City:          "Atlanta",
		PMS:           "RealPage",
		UnitsEstimate: 85000,
		Description:   "Multifamily investment and management firm.",
	},
	{
		Name:          "Bozzuto Group",
		Website:       "https://www.bozzuto.com",
		Domain:        "bozzuto.com",
		State:         "MD",
		City:          "Greenbelt",
		PMS:           "Yardi",
		UnitsEstimate: 80000,
		Description:   "Diversified real estate development and management firm.",
	},
}
