package airquality

// Category is a US EPA AQI band.
type Category string

const (
	CategoryGood          Category = "good"
	CategoryModerate      Category = "moderate"
	CategorySensitive     Category = "unhealthy-for-sensitive-groups"
	CategoryUnhealthy     Category = "unhealthy"
	CategoryVeryUnhealthy Category = "very-unhealthy"
	CategoryHazardous     Category = "hazardous"
)

// Level is the presentation of an AQI value: marker color and size.
type Level struct {
	Category   Category
	Color      string
	MarkerSize float64
}

type threshold struct {
	max   float64
	level Level
}

// thresholds are evaluated in order; the first max that is >= aqi wins.
var thresholds = []threshold{
	{50, Level{CategoryGood, "green", 5}},
	{100, Level{CategoryModerate, "yellow", 7.5}},
	{150, Level{CategorySensitive, "orange", 10}},
	{200, Level{CategoryUnhealthy, "red", 12.5}},
	{300, Level{CategoryVeryUnhealthy, "purple", 15}},
}

var hazardous = Level{CategoryHazardous, "maroon", 20}

// ClassifyAQI maps an AQI value to its level.
// Boundary values belong to the lower bucket; anything above 300 (or NaN) is hazardous.
func ClassifyAQI(aqi float64) Level {
	for _, t := range thresholds {
		if aqi <= t.max {
			return t.level
		}
	}
	return hazardous
}

// Levels returns every level in ascending order, with the upper bound of each band.
// The last band has no upper bound and reports 0.
func Levels() []BandInfo {
	bands := make([]BandInfo, 0, len(thresholds)+1)
	for _, t := range thresholds {
		bands = append(bands, BandInfo{Max: t.max, Level: t.level})
	}
	return append(bands, BandInfo{Level: hazardous, Open: true})
}

// BandInfo describes one classification band.
type BandInfo struct {
	Max   float64
	Open  bool
	Level Level
}
