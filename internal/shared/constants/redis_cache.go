package constants

import "time"

// Redis Cache Configuration
// Pattern: swapstation:{module}:{operation}:{identifier}

const (
	CACHE_PREFIX = "swapstation"
)

// Highly Dynamic (Micro TTL: real-time sensitive)
const (
	TTL_REALTIME_MEDIUM = 1 * time.Minute
	TTL_REALTIME_SHORT  = 30 * time.Second
)

// ================== STATIONS MODULE ==================

const (
	CACHE_KEY_STATION_DETAIL  = CACHE_PREFIX + ":stations:detail:uuid:"  // + station-id
	CACHE_KEY_STATION_PILLARS = CACHE_PREFIX + ":stations:pillars:uuid:" // + station-id
)

const (
	TTL_STATION_DETAIL = TTL_REALTIME_SHORT
)

// ================== INVALIDATION PATTERNS ==================

const (
	PATTERN_INVALIDATE_STATIONS_ALL = CACHE_PREFIX + ":stations:*"
)

func BuildStationDetailKey(stationID string) string {
	return CACHE_KEY_STATION_DETAIL + stationID
}

func BuildStationPillarsKey(stationID string) string {
	return CACHE_KEY_STATION_PILLARS + stationID
}

// BuildStationInvalidatePattern matches every cached view of one station.
func BuildStationInvalidatePattern(stationID string) string {
	return CACHE_PREFIX + ":stations:*:uuid:" + stationID
}
