package models

// HeatmapRequest selects a bounding box and a privacy level. A higher privacy
// level injects more noise into the released counts.
type HeatmapRequest struct {
	MinLat       float64 `json:"min_lat"`
	MinLon       float64 `json:"min_lon"`
	MaxLat       float64 `json:"max_lat"`
	MaxLon       float64 `json:"max_lon"`
	PrivacyLevel float64 `json:"privacy_level"`
}

// HeatmapCell is one released grid cell. Count is already noised; intensity is
// the count normalized against the maximum noised count of the release.
type HeatmapCell struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Intensity float64 `json:"intensity"`
	Count     uint32  `json:"count"`
}

// HeatmapResponse is a released heatmap. Once released for a given request
// tuple it is cached and returned verbatim, so repeated identical requests do
// not consume additional noise draws.
type HeatmapResponse struct {
	Cells        []HeatmapCell `json:"cells"`
	PrivacyLevel float64       `json:"privacy_level"`
	MinLat       float64       `json:"min_lat"`
	MaxLat       float64       `json:"max_lat"`
	MinLon       float64       `json:"min_lon"`
	MaxLon       float64       `json:"max_lon"`
}
