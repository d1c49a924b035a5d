package domain

// WarningCode identifies a non-fatal condition surfaced to the view.
type WarningCode string

const (
	// WarningDistanceNoOrigin means a distance sort or radius was requested
	// without a resolvable origin.
	WarningDistanceNoOrigin WarningCode = "distance_no_origin"
	// WarningSkippedCamp means a catalog row failed validation and was left
	// out of the snapshot.
	WarningSkippedCamp WarningCode = "skipped_camp"
)

// Warning is a warnable condition with optional context for localization.
type Warning struct {
	Code     WarningCode
	Detail   string
	Metadata map[string]string
}
