package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punk-blvck/blvck-hub/internal/faults"
)

func TestNominatimReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "PunkBlvck/1.0", r.Header.Get("User-Agent"))
		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "10", q.Get("zoom"))
		assert.Equal(t, "1", q.Get("addressdetails"))
		_, _ = w.Write([]byte(`{"address":{"town":"Anápolis","state":"Goiás"},"display_name":"Anápolis, Goiás, Brasil"}`))
	}))
	defer srv.Close()

	g := &Nominatim{Client: srv.Client(), Endpoint: srv.URL, UserAgent: "PunkBlvck/1.0"}
	label, err := g.Reverse(context.Background(), -16.33, -48.95)
	require.NoError(t, err)
	assert.Equal(t, "Anápolis, Goiás", label)
}

func TestNominatimFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := &Nominatim{Client: srv.Client(), Endpoint: srv.URL}
	_, err := g.Reverse(context.Background(), 0, 0)
	assert.True(t, faults.Is(err, faults.CodeFetchFailed))
}

func TestPlaceLabel(t *testing.T) {
	withAddress := func(city, town, village, municipality, state, display string) nominatimResponse {
		var p nominatimResponse
		p.Address.City = city
		p.Address.Town = town
		p.Address.Village = village
		p.Address.Municipality = municipality
		p.Address.State = state
		p.DisplayName = display
		return p
	}
	cases := []struct {
		name string
		in   nominatimResponse
		want string
	}{
		{"city and state", withAddress("Goiânia", "", "", "", "Goiás", ""), "Goiânia, Goiás"},
		{"village only", withAddress("", "", "Pirenópolis", "", "", ""), "Pirenópolis"},
		{"municipality", withAddress("", "", "", "Aparecida", "Goiás", ""), "Aparecida, Goiás"},
		{"state only", withAddress("", "", "", "", "Goiás", ""), "Goiás"},
		{"display name head", withAddress("", "", "", "", "", "Parque Nacional, Brasil"), "Parque Nacional"},
		{"nothing", withAddress("", "", "", "", "", ""), unknownPlace},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, placeLabel(tc.in))
		})
	}
	assert.Equal(t, "1.23, -4.57", coordinateLabel(1.2345, -4.5678))
}
