package sources

// DefaultEndpoints are queried in order; the first valid answer wins.
var DefaultEndpoints = []string{
	"https://api.ipify.org?format=text",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// DefaultZones is the published conversion table.
var DefaultZones = []ZoneSpec{
	{Label: "UTC", Location: "UTC"},
	{Label: "New York (EST/EDT)", Location: "America/New_York"},
	{Label: "Los Angeles (PST/PDT)", Location: "America/Los_Angeles"},
	{Label: "London (GMT/BST)", Location: "Europe/London"},
	{Label: "Paris (CET/CEST)", Location: "Europe/Paris"},
	{Label: "Tokyo (JST)", Location: "Asia/Tokyo"},
	{Label: "Sydney (AEDT/AEST)", Location: "Australia/Sydney"},
	{Label: "Mumbai (IST)", Location: "Asia/Kolkata"},
	{Label: "Dubai (GST)", Location: "Asia/Dubai"},
	{Label: "São Paulo (BRT/BRST)", Location: "America/Sao_Paulo"},
}
