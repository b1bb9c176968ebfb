// Package soil turns soil and weather readings plus crop-model output into
// recommendations.
package soil

import (
	"fmt"
	"math"
	"strings"
)

// Metrics is one soil and weather reading.
type Metrics struct {
	Nitrogen    float64 `json:"nitrogen"`
	Phosphorus  float64 `json:"phosphorus"`
	Potassium   float64 `json:"potassium"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
	Rainfall    float64 `json:"rainfall"`
}

// Bound is the inclusive range accepted for one field.
type Bound struct {
	Field string
	Min   float64
	Max   float64
	Unit  string
}

// Bounds lists the accepted range of every field, in feature order.
var Bounds = []Bound{
	{Field: "nitrogen", Min: 0, Max: 200, Unit: "kg/ha"},
	{Field: "phosphorus", Min: 0, Max: 200, Unit: "kg/ha"},
	{Field: "potassium", Min: 0, Max: 200, Unit: "kg/ha"},
	{Field: "temperature", Min: -10, Max: 60, Unit: "°C"},
	{Field: "humidity", Min: 0, Max: 100, Unit: "%"},
	{Field: "ph", Min: 0, Max: 14},
	{Field: "rainfall", Min: 0, Max: 1000, Unit: "mm"},
}

// Describe states the accepted range.
func (b Bound) Describe() string {
	return fmt.Sprintf("%s must be between %g and %g", b.Field, b.Min, b.Max)
}

// BoundFor returns the bound for a field name as it appears in Bounds.
func BoundFor(field string) (Bound, bool) {
	for _, b := range Bounds {
		if b.Field == field {
			return b, true
		}
	}
	return Bound{}, false
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string  `json:"field"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

// ValidationError is returned when a reading has out-of-range fields.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "invalid soil metrics: " + strings.Join(msgs, "; ")
}

// Features returns the model input vector: N, P, K, temperature, humidity,
// pH, rainfall.
func (m Metrics) Features() []float32 {
	return []float32{
		float32(m.Nitrogen),
		float32(m.Phosphorus),
		float32(m.Potassium),
		float32(m.Temperature),
		float32(m.Humidity),
		float32(m.PH),
		float32(m.Rainfall),
	}
}

func (m Metrics) values() []float64 {
	return []float64{m.Nitrogen, m.Phosphorus, m.Potassium, m.Temperature, m.Humidity, m.PH, m.Rainfall}
}

// Validate rejects readings outside the documented bounds. Values are never
// clamped.
func (m Metrics) Validate() error {
	var fields []FieldError
	for i, v := range m.values() {
		b := Bounds[i]
		if math.IsNaN(v) || v < b.Min || v > b.Max {
			fields = append(fields, FieldError{
				Field:   b.Field,
				Value:   v,
				Message: b.Describe(),
			})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
