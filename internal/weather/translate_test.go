package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateCondition(t *testing.T) {
	cases := []struct {
		main, description, want string
	}{
		{"Clear", "clear sky", "Céu limpo"},
		{"Clouds", "Overcast Clouds", "Nublado"},
		{"Rain", "light rain", "Chuva fraca"},
		{"Rain", "freezing rain", "Chuva"},
		{"Squall", "squalls", "Temporal"},
		{"", "Sunny", "Ensolarado"},
		{"Extreme", "volcanic ash plume", "Volcanic ash plume"},
		{"", "ébano", "Ébano"},
		{"", "", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TranslateCondition(tc.main, tc.description), "%s/%s", tc.main, tc.description)
	}
}

func TestSyntheticRecords(t *testing.T) {
	records := SyntheticRecords()
	assert.Len(t, records, 4)
	assert.Equal(t, Record{City: "Goiânia, GO", Temp: 31, Condition: "Ensolarado", Humidity: 42, WindSpeed: 10}, records[0])
	assert.Equal(t, "Parcialmente Nublado", records[3].Condition)

	assert.Equal(t, records[0], synthetic(func(int) int { return 99 }), "out-of-range pick falls back to the first record")
}
