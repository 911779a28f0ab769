// Package alertengine evaluates one garden's current weather against its
// plants' sensitivity profiles, emitting zero or more Alerts.
package alertengine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

// WeatherFetcher fetches the current weather for a coordinate.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, lat, lon float64) *model.WeatherSnapshot
}

// PlantsGetter returns the fresh cached plants for a user, or nil.
type PlantsGetter interface {
	Get(userID int) []model.Plant
}

// ProfileResolver resolves a plant type to its sensitivity profile.
type ProfileResolver interface {
	Resolve(plantType string) model.SensitivityProfile
}

// Engine evaluates gardens against weather and emits breach alerts.
type Engine struct {
	weather  WeatherFetcher
	plants   PlantsGetter
	registry ProfileResolver
	log      *logging.Logger
}

// New constructs an Engine.
func New(weather WeatherFetcher, plants PlantsGetter, registry ProfileResolver) *Engine {
	return &Engine{weather: weather, plants: plants, registry: registry, log: logging.New("alert-engine")}
}

// EvaluateGarden runs the full evaluation for one garden. It never panics
// out to the caller; any internal failure yields an empty slice.
func (e *Engine) EvaluateGarden(ctx context.Context, garden model.Garden) (alerts []model.Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Printf("recovered evaluating garden %s: %v", garden.GardenID, r)
			alerts = nil
		}
	}()

	weather := e.weather.FetchWeather(ctx, garden.Latitude, garden.Longitude)
	if weather == nil {
		return nil
	}

	plants := e.plants.Get(garden.UserID)
	if len(plants) == 0 {
		return nil
	}

	types := uniqueTypes(plants)
	profiles := make([]model.SensitivityProfile, 0, len(types))
	for _, t := range types {
		profiles = append(profiles, e.registry.Resolve(t))
	}

	ctx2 := ruleContext{weather: *weather, garden: garden, plants: plants}

	if alert := evalHighTemperature(profiles, ctx2); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := evalLowTemperature(profiles, ctx2); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := evalHeavyRain(profiles, ctx2); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := evalStrongWind(profiles, ctx2); alert != nil {
		alerts = append(alerts, *alert)
	}
	return alerts
}

// ruleContext bundles the inputs every rule evaluator needs.
type ruleContext struct {
	weather model.WeatherSnapshot
	garden  model.Garden
	plants  []model.Plant
}

func uniqueTypes(plants []model.Plant) []string {
	seen := make(map[string]struct{}, len(plants))
	var out []string
	for _, p := range plants {
		if _, ok := seen[p.Type]; ok {
			continue
		}
		seen[p.Type] = struct{}{}
		out = append(out, p.Type)
	}
	sort.Strings(out)
	return out
}

func evalHighTemperature(profiles []model.SensitivityProfile, rc ruleContext) *model.Alert {
	var hit []model.SensitivityProfile
	for _, p := range profiles {
		if rc.weather.Temperature > p.MaxTemperature {
			hit = append(hit, p)
		}
	}
	if len(hit) == 0 {
		return nil
	}
	threshold := hit[0].MaxTemperature
	for _, p := range hit[1:] {
		if p.MaxTemperature < threshold {
			threshold = p.MaxTemperature
		}
	}
	return buildAlert(model.AlertHighTemperature, model.MetricTemperature, rc.weather.Temperature, threshold, hit, rc)
}

func evalLowTemperature(profiles []model.SensitivityProfile, rc ruleContext) *model.Alert {
	var hit []model.SensitivityProfile
	for _, p := range profiles {
		if rc.weather.Temperature < p.MinTemperature {
			hit = append(hit, p)
		}
	}
	if len(hit) == 0 {
		return nil
	}
	threshold := hit[0].MinTemperature
	for _, p := range hit[1:] {
		if p.MinTemperature > threshold {
			threshold = p.MinTemperature
		}
	}
	return buildAlert(model.AlertLowTemperature, model.MetricTemperature, rc.weather.Temperature, threshold, hit, rc)
}

func evalHeavyRain(profiles []model.SensitivityProfile, rc ruleContext) *model.Alert {
	var hit []model.SensitivityProfile
	for _, p := range profiles {
		if rc.weather.Precipitation > p.MaxPrecipitation {
			hit = append(hit, p)
		}
	}
	if len(hit) == 0 {
		return nil
	}
	threshold := hit[0].MaxPrecipitation
	for _, p := range hit[1:] {
		if p.MaxPrecipitation < threshold {
			threshold = p.MaxPrecipitation
		}
	}
	return buildAlert(model.AlertHeavyRain, model.MetricPrecipitation, rc.weather.Precipitation, threshold, hit, rc)
}

func evalStrongWind(profiles []model.SensitivityProfile, rc ruleContext) *model.Alert {
	var hit []model.SensitivityProfile
	for _, p := range profiles {
		if rc.weather.WindSpeed > p.MaxWindSpeed {
			hit = append(hit, p)
		}
	}
	if len(hit) == 0 {
		return nil
	}
	threshold := hit[0].MaxWindSpeed
	for _, p := range hit[1:] {
		if p.MaxWindSpeed < threshold {
			threshold = p.MaxWindSpeed
		}
	}
	return buildAlert(model.AlertStrongWind, model.MetricWindSpeed, rc.weather.WindSpeed, threshold, hit, rc)
}

func buildAlert(at model.AlertType, metric model.Metric, current, threshold float64, hit []model.SensitivityProfile, rc ruleContext) *model.Alert {
	types := make([]string, 0, len(hit))
	typeSet := make(map[string]struct{}, len(hit))
	for _, p := range hit {
		types = append(types, p.PlantType)
		typeSet[p.PlantType] = struct{}{}
	}
	var names []string
	for _, p := range rc.plants {
		if _, ok := typeSet[p.Type]; ok {
			names = append(names, p.Name)
		}
	}

	ts := rc.weather.ObservedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &model.Alert{
		AlertID:            uuid.NewString(),
		GardenID:           rc.garden.GardenID,
		UserID:             rc.garden.UserID,
		GardenName:         rc.garden.Name,
		Timestamp:          ts,
		AlertType:          at,
		Metric:             metric,
		CurrentValue:       current,
		Threshold:          threshold,
		AffectedPlantTypes: types,
		AffectedPlantNames: names,
	}
}
