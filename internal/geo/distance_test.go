package geo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RaselmamunSD/Zuhha/internal/core"
)

func coords(lat, lng float64) (*float64, *float64) {
	return &lat, &lng
}

func TestPlanarDistanceKM(t *testing.T) {
	// One degree of latitude is ~111 km on the flat-plane model.
	require.InDelta(t, 111.0, PlanarDistanceKM(23.0, 90.0, 24.0, 90.0), 0.001)
	require.Equal(t, 0.0, PlanarDistanceKM(23.81, 90.41, 23.81, 90.41))

	// Dhaka city center to a nearby point stays within a 10 km radius.
	d := PlanarDistanceKM(23.80, 90.41, 23.79, 90.40)
	require.Less(t, d, 10.0)
	require.Greater(t, d, 0.0)
}

func TestNearby_FilterSortTruncate(t *testing.T) {
	var mosques []core.Mosque

	near := core.Mosque{ID: 1, Name: "near"}
	near.Latitude, near.Longitude = coords(23.79, 90.40)
	far := core.Mosque{ID: 2, Name: "far"}
	far.Latitude, far.Longitude = coords(24.50, 91.00)
	closest := core.Mosque{ID: 3, Name: "closest"}
	closest.Latitude, closest.Longitude = coords(23.801, 90.411)
	unlocated := core.Mosque{ID: 4, Name: "unlocated"}

	mosques = append(mosques, near, far, closest, unlocated)

	out := Nearby(mosques, 23.80, 90.41, 10)
	require.Len(t, out, 2)
	require.Equal(t, int64(3), out[0].ID)
	require.Equal(t, int64(1), out[1].ID)
	require.NotNil(t, out[0].DistanceKM)
	require.LessOrEqual(t, *out[0].DistanceKM, *out[1].DistanceKM)
}

func TestNearby_CapsAtTwenty(t *testing.T) {
	var mosques []core.Mosque
	for i := 0; i < 30; i++ {
		m := core.Mosque{ID: int64(i)}
		m.Latitude, m.Longitude = coords(23.80+float64(i)*0.0001, 90.41)
		mosques = append(mosques, m)
	}
	out := Nearby(mosques, 23.80, 90.41, 10)
	require.Len(t, out, 20)
}

func TestNearby_EmptyOutsideRadius(t *testing.T) {
	m := core.Mosque{ID: 1}
	m.Latitude, m.Longitude = coords(25.0, 92.0)
	require.Empty(t, Nearby([]core.Mosque{m}, 23.80, 90.41, 10))
}
