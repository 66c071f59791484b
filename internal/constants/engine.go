package constants

const (
	// GridSize is the edge of one grid cell in degrees, roughly 100 m.
	GridSize = 0.001

	// SameLocationThreshold is the maximum Euclidean distance in degrees
	// between consecutive points of one stay, roughly 30 m.
	SameLocationThreshold = 0.0003

	// MinStayDurationSeconds is the minimum span of a cluster before it
	// counts as a visit.
	MinStayDurationSeconds = 300

	// MinVisitPoints is the minimum number of points in a visit cluster.
	MinVisitPoints = 2

	// QuorumMatchRatio is the minimum matched/expected station ratio under
	// the quorum verification policy.
	QuorumMatchRatio = 0.3

	// NoiseScaleFactor scales the privacy level into the Gaussian noise
	// standard deviation applied to heatmap counts.
	NoiseScaleFactor = 2.0

	// SyntheticIntensityFloor drops synthetic heatmap cells below this
	// intensity.
	SyntheticIntensityFloor = 0.05

	// MetersPerDegree approximates one degree of latitude for distance
	// summaries.
	MetersPerDegree = 111000.0
)
