package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the ISO calendar format every measurement date is stored in.
// Lexical order of strings in this layout matches chronological order.
const DateLayout = "2006-01-02"

// PrecipitationEntry serializes as a single-key object {date: prcp}
type PrecipitationEntry struct {
	Date          string   `db:"date"`
	Precipitation *float64 `db:"prcp"`
}

// MarshalJSON implements json.Marshaler
func (p PrecipitationEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]*float64{p.Date: p.Precipitation})
}

// TemperatureObservation serializes as {date: tobs, station: name}
type TemperatureObservation struct {
	Date        string  `db:"date"`
	Tobs        float64 `db:"tobs"`
	StationID   string  `db:"station"`
	StationName string  `db:"name"`
}

// MarshalJSON implements json.Marshaler
func (o TemperatureObservation) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		o.Date:      o.Tobs,
		o.StationID: o.StationName,
	})
}

// TemperatureSummary is the min/avg/max of tobs for one date.
// The two spaces in "Low  Temperature" are part of the published contract.
type TemperatureSummary struct {
	Date string  `json:"Date" db:"date"`
	Low  float64 `json:"Low  Temperature" db:"low"`
	Avg  float64 `json:"Avg. Temperature" db:"avg"`
	High float64 `json:"High Temperature" db:"high"`
}

// DateRange holds the earliest and latest measurement dates in the dataset
type DateRange struct {
	Earliest string `json:"earliest" db:"earliest"`
	Latest   string `json:"latest" db:"latest"`
}

// ObservationWindow is the lookback window derived once from the dataset
type ObservationWindow struct {
	Earliest  string `json:"earliest"`
	Reference string `json:"reference"`
	// Start is exclusive: only dates strictly after it fall in the window.
	Start string `json:"start"`

	reference time.Time
	start     time.Time
}

// NewObservationWindow derives the window that ends at the latest measurement
// and reaches back the given number of days
func NewObservationWindow(r DateRange, days int) (ObservationWindow, error) {
	latest, err := time.Parse(DateLayout, r.Latest)
	if err != nil {
		return ObservationWindow{}, &ValidationError{
			Field:   "date",
			Value:   r.Latest,
			Message: fmt.Sprintf("latest measurement date %q is not in YYYY-MM-DD form", r.Latest),
		}
	}

	start := latest.AddDate(0, 0, -days)

	return ObservationWindow{
		Earliest:  r.Earliest,
		Reference: r.Latest,
		Start:     start.Format(DateLayout),
		reference: latest,
		start:     start,
	}, nil
}

// ReferenceTime returns the latest measurement date as a time.Time
func (w ObservationWindow) ReferenceTime() time.Time {
	return w.reference
}

// StartTime returns the window start as a time.Time
func (w ObservationWindow) StartTime() time.Time {
	return w.start
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
