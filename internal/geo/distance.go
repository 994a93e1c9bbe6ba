package geo

import (
	"math"
	"sort"

	"github.com/RaselmamunSD/Zuhha/internal/core"
)

// DegreesToKM converts a coordinate-degree delta to kilometers on the
// flat-plane approximation used by the nearby lookup.
const DegreesToKM = 111.0

const maxNearbyResults = 20

// PlanarDistanceKM is the deliberately non-geodesic distance used by the
// mosque nearby filter: sqrt(dLat² + dLng²) scaled by ~111 km/degree.
func PlanarDistanceKM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat1 - lat2
	dLng := lng1 - lng2
	return math.Sqrt(dLat*dLat+dLng*dLng) * DegreesToKM
}

// Nearby filters mosques to those within radiusKM of (lat, lng), sorts
// ascending by distance and truncates to the top 20. Mosques without
// coordinates are ignored. Each returned mosque carries its computed
// DistanceKM.
func Nearby(mosques []core.Mosque, lat, lng, radiusKM float64) []core.Mosque {
	var out []core.Mosque
	for _, m := range mosques {
		if m.Latitude == nil || m.Longitude == nil {
			continue
		}
		d := PlanarDistanceKM(lat, lng, *m.Latitude, *m.Longitude)
		if d > radiusKM {
			continue
		}
		d = math.Round(d*100) / 100
		m.DistanceKM = &d
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].DistanceKM < *out[j].DistanceKM })
	if len(out) > maxNearbyResults {
		out = out[:maxNearbyResults]
	}
	return out
}
