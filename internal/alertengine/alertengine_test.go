package alertengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weatheralertd/weatheralertd/internal/model"
)

type fakeWeather struct {
	snap *model.WeatherSnapshot
}

func (f fakeWeather) FetchWeather(ctx context.Context, lat, lon float64) *model.WeatherSnapshot {
	return f.snap
}

type fakePlants struct {
	byUser map[int][]model.Plant
}

func (f fakePlants) Get(userID int) []model.Plant {
	return f.byUser[userID]
}

type fakeRegistry struct {
	profiles map[string]model.SensitivityProfile
	def      model.SensitivityProfile
}

func (f fakeRegistry) Resolve(plantType string) model.SensitivityProfile {
	if p, ok := f.profiles[plantType]; ok {
		return p
	}
	return f.def
}

var testGarden = model.Garden{GardenID: "g1", UserID: 1, Name: "Test Garden", Latitude: 45, Longitude: 9}

func TestEvaluateGarden_NoWeather_ReturnsEmpty(t *testing.T) {
	e := New(fakeWeather{snap: nil}, fakePlants{}, fakeRegistry{})
	alerts := e.EvaluateGarden(context.Background(), testGarden)
	require.Empty(t, alerts)
}

func TestEvaluateGarden_NoPlants_ReturnsEmpty(t *testing.T) {
	e := New(fakeWeather{snap: &model.WeatherSnapshot{Temperature: 40, ObservedAt: time.Now()}}, fakePlants{}, fakeRegistry{})
	alerts := e.EvaluateGarden(context.Background(), testGarden)
	require.Empty(t, alerts)
}

func TestEvaluateGarden_HighTemperature_StrictInequality(t *testing.T) {
	plants := fakePlants{byUser: map[int][]model.Plant{1: {{ID: 1, UserID: 1, Name: "Tomato A", Type: "tomato"}}}}
	reg := fakeRegistry{profiles: map[string]model.SensitivityProfile{
		"tomato": {PlantType: "tomato", MaxTemperature: 32, MinTemperature: 10},
	}}

	// Exactly at threshold: no alert.
	atThreshold := fakeWeather{snap: &model.WeatherSnapshot{Temperature: 32, ObservedAt: time.Now()}}
	e := New(atThreshold, plants, reg)
	require.Empty(t, e.EvaluateGarden(context.Background(), testGarden))

	// Strictly above: alert.
	above := fakeWeather{snap: &model.WeatherSnapshot{Temperature: 32.1, ObservedAt: time.Now()}}
	e2 := New(above, plants, reg)
	alerts := e2.EvaluateGarden(context.Background(), testGarden)
	require.Len(t, alerts, 1)
	require.Equal(t, model.AlertHighTemperature, alerts[0].AlertType)
	require.Equal(t, 32.0, alerts[0].Threshold)
	require.Equal(t, []string{"Tomato A"}, alerts[0].AffectedPlantNames)
}

func TestEvaluateGarden_MostRestrictiveThreshold_HighTemperature(t *testing.T) {
	plants := fakePlants{byUser: map[int][]model.Plant{1: {
		{ID: 1, UserID: 1, Name: "Tomato A", Type: "tomato"},
		{ID: 2, UserID: 1, Name: "Basil A", Type: "basil"},
	}}}
	reg := fakeRegistry{profiles: map[string]model.SensitivityProfile{
		"tomato": {PlantType: "tomato", MaxTemperature: 32, MinTemperature: 10},
		"basil":  {PlantType: "basil", MaxTemperature: 28, MinTemperature: 12},
	}}
	weather := fakeWeather{snap: &model.WeatherSnapshot{Temperature: 33, ObservedAt: time.Now()}}
	e := New(weather, plants, reg)

	alerts := e.EvaluateGarden(context.Background(), testGarden)
	require.Len(t, alerts, 1)
	require.Equal(t, 28.0, alerts[0].Threshold)
	require.ElementsMatch(t, []string{"tomato", "basil"}, alerts[0].AffectedPlantTypes)
}

func TestEvaluateGarden_MostRestrictiveThreshold_LowTemperature(t *testing.T) {
	plants := fakePlants{byUser: map[int][]model.Plant{1: {
		{ID: 1, UserID: 1, Name: "Tomato A", Type: "tomato"},
		{ID: 2, UserID: 1, Name: "Basil A", Type: "basil"},
	}}}
	reg := fakeRegistry{profiles: map[string]model.SensitivityProfile{
		"tomato": {PlantType: "tomato", MaxTemperature: 32, MinTemperature: 10},
		"basil":  {PlantType: "basil", MaxTemperature: 28, MinTemperature: 12},
	}}
	weather := fakeWeather{snap: &model.WeatherSnapshot{Temperature: 8, ObservedAt: time.Now()}}
	e := New(weather, plants, reg)

	alerts := e.EvaluateGarden(context.Background(), testGarden)
	require.Len(t, alerts, 1)
	require.Equal(t, model.AlertLowTemperature, alerts[0].AlertType)
	require.Equal(t, 12.0, alerts[0].Threshold)
}

func TestEvaluateGarden_HeavyRainAndStrongWind(t *testing.T) {
	plants := fakePlants{byUser: map[int][]model.Plant{1: {{ID: 1, UserID: 1, Name: "Succulent A", Type: "succulent"}}}}
	reg := fakeRegistry{profiles: map[string]model.SensitivityProfile{
		"succulent": {PlantType: "succulent", MaxTemperature: 40, MinTemperature: 5, MaxPrecipitation: 10, MaxWindSpeed: 60},
	}}
	weather := fakeWeather{snap: &model.WeatherSnapshot{Temperature: 20, Precipitation: 15, WindSpeed: 70, ObservedAt: time.Now()}}
	e := New(weather, plants, reg)

	alerts := e.EvaluateGarden(context.Background(), testGarden)
	require.Len(t, alerts, 2)

	types := map[model.AlertType]bool{}
	for _, a := range alerts {
		types[a.AlertType] = true
	}
	require.True(t, types[model.AlertHeavyRain])
	require.True(t, types[model.AlertStrongWind])
}

func TestEvaluateGarden_NoBreach_ReturnsEmpty(t *testing.T) {
	plants := fakePlants{byUser: map[int][]model.Plant{1: {{ID: 1, UserID: 1, Name: "Tomato A", Type: "tomato"}}}}
	reg := fakeRegistry{profiles: map[string]model.SensitivityProfile{
		"tomato": {PlantType: "tomato", MaxTemperature: 32, MinTemperature: 10, MaxPrecipitation: 20, MaxWindSpeed: 40},
	}}
	weather := fakeWeather{snap: &model.WeatherSnapshot{Temperature: 20, Precipitation: 5, WindSpeed: 10, ObservedAt: time.Now()}}
	e := New(weather, plants, reg)

	require.Empty(t, e.EvaluateGarden(context.Background(), testGarden))
}
