// Package model holds the data types shared across weatheralertd's services.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Garden is an immutable monitored location loaded from gardens.config.json.
type Garden struct {
	GardenID  string  `json:"gardenId"`
	UserID    int     `json:"userId"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SensitivityProfile describes one plant type's climatic tolerance.
type SensitivityProfile struct {
	PlantType        string  `json:"plantType"`
	MaxTemperature   float64 `json:"maxTemperature"`
	MinTemperature   float64 `json:"minTemperature"`
	MaxPrecipitation float64 `json:"maxPrecipitation"`
	MaxWindSpeed     float64 `json:"maxWindSpeed"`
}

// DefaultProfileKey is the mandatory fallback profile key.
const DefaultProfileKey = "default"

// Plant is a plant record as returned by the backend.
type Plant struct {
	ID     int    `json:"id"`
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// User is a backend user record.
type User struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	PhoneNumber *string `json:"phone_number"`
}

// WeatherSnapshot is a normalized weather reading for one coordinate.
type WeatherSnapshot struct {
	Temperature    float64   `json:"temperature"`
	TemperatureMax float64   `json:"temperatureMax"`
	TemperatureMin float64   `json:"temperatureMin"`
	Precipitation  float64   `json:"precipitation"`
	WindSpeed      float64   `json:"windSpeed"`
	ObservedAt     time.Time `json:"observedAt"`
}

// AlertType enumerates the four rule outcomes an AlertEngine can emit.
type AlertType string

const (
	AlertHighTemperature AlertType = "HIGH_TEMPERATURE"
	AlertLowTemperature  AlertType = "LOW_TEMPERATURE"
	AlertHeavyRain       AlertType = "HEAVY_RAIN"
	AlertStrongWind      AlertType = "STRONG_WIND"
)

// Metric enumerates the weather metric an Alert is about.
type Metric string

const (
	MetricTemperature   Metric = "temperature"
	MetricPrecipitation Metric = "precipitation"
	MetricWindSpeed     Metric = "windSpeed"
)

// Alert is one emitted threshold breach, persisted verbatim to HistoryStore.
type Alert struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AlertID            string             `bson:"alertId" json:"alertId"`
	GardenID           string             `bson:"gardenId" json:"gardenId"`
	UserID             int                `bson:"userId" json:"userId"`
	GardenName         string             `bson:"gardenName" json:"gardenName"`
	Timestamp          time.Time          `bson:"timestamp" json:"timestamp"`
	AlertType          AlertType          `bson:"alertType" json:"alertType"`
	Metric             Metric             `bson:"metric" json:"metric"`
	CurrentValue       float64            `bson:"currentValue" json:"currentValue"`
	Threshold          float64            `bson:"threshold" json:"threshold"`
	AffectedPlantTypes []string           `bson:"affectedPlantTypes" json:"affectedPlantTypes"`
	AffectedPlantNames []string           `bson:"affectedPlantNames" json:"affectedPlantNames"`
	CreatedAt          time.Time          `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// PlantCacheEntry is one user's cached plant list plus the time it was fetched.
type PlantCacheEntry struct {
	Plants        []Plant
	LastRefreshed time.Time
}

// Stale reports whether the entry is older than ttl as of now.
func (e PlantCacheEntry) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.LastRefreshed) > ttl
}
