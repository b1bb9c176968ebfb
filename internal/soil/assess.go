package soil

// Tier is a coarse three-level rating.
type Tier string

const (
	HealthGood     Tier = "good"
	HealthModerate Tier = "moderate"
	HealthPoor     Tier = "poor"

	RiskHigh   Tier = "high"
	RiskMedium Tier = "medium"
	RiskLow    Tier = "low"
)

type band struct{ lo, hi float64 }

func (b band) contains(v float64) bool { return v >= b.lo && v <= b.hi }

var (
	nitrogenOptimal   = band{30, 80}
	phosphorusOptimal = band{20, 60}
	potassiumOptimal  = band{20, 60}
	phOptimal         = band{6.0, 7.0}
	phTolerable       = band{5.5, 7.5}

	temperatureSafe = band{5, 40}
	rainfallSafe    = band{20, 200}
)

const humidityRiskAbove = 85

// nutrientPoints scores one nutrient: 2 inside its optimal band, 1 when
// present but outside it, 0 when absent.
func nutrientPoints(v float64, optimal band) int {
	switch {
	case optimal.contains(v):
		return 2
	case v > 0:
		return 1
	}
	return 0
}

func phPoints(ph float64) int {
	switch {
	case phOptimal.contains(ph):
		return 2
	case phTolerable.contains(ph):
		return 1
	}
	return 0
}

// AssessSoilHealth scores N, P, K and pH out of 8 and maps the total to a tier.
func AssessSoilHealth(n, p, k, ph float64) Tier {
	score := nutrientPoints(n, nitrogenOptimal) +
		nutrientPoints(p, phosphorusOptimal) +
		nutrientPoints(k, potassiumOptimal) +
		phPoints(ph)

	switch {
	case score >= 7:
		return HealthGood
	case score >= 4:
		return HealthModerate
	}
	return HealthPoor
}

// AssessWeatherRisk rates temperature first; rainfall and humidity only
// matter when the temperature is tolerable.
func AssessWeatherRisk(temperature, rainfall, humidity float64) Tier {
	if !temperatureSafe.contains(temperature) {
		return RiskHigh
	}
	if !rainfallSafe.contains(rainfall) || humidity > humidityRiskAbove {
		return RiskMedium
	}
	return RiskLow
}
