package soil

import (
	"fmt"
	"strings"

	"github.com/Brownie44l1/agri-ml/internal/mathutil"
	"github.com/Brownie44l1/agri-ml/internal/topk"
)

// DefaultSuitabilityThreshold is the probability above which a selected crop
// counts as suitable.
const DefaultSuitabilityThreshold = 0.6

const recommendationCount = 3

type rule struct {
	triggered   func(Metrics) bool
	issue       string
	improvement string
}

// Acidity and alkalinity are mutually exclusive, so only one pH rule fires.
var agronomicRules = []rule{
	{
		triggered:   func(m Metrics) bool { return m.Nitrogen < 20 },
		issue:       "Low nitrogen may reduce yield by 15-25%",
		improvement: "Apply urea (46-0-0) at 50kg/acre before sowing",
	},
	{
		triggered:   func(m Metrics) bool { return m.Phosphorus < 15 },
		issue:       "Phosphorus deficiency may affect root development",
		improvement: "Add single superphosphate (SSP) at 40kg/acre",
	},
	{
		triggered:   func(m Metrics) bool { return m.Potassium < 15 },
		issue:       "Low potassium may reduce disease resistance",
		improvement: "Apply muriate of potash (MOP) at 30kg/acre",
	},
	{
		triggered:   func(m Metrics) bool { return m.PH < 5.5 },
		issue:       "Soil is too acidic — most crops prefer pH 6.0-7.0",
		improvement: "Apply agricultural lime at 2-4 tonnes/acre to raise pH",
	},
	{
		triggered:   func(m Metrics) bool { return m.PH > 7.5 },
		issue:       "Soil is too alkaline — may lock nutrients",
		improvement: "Apply gypsum or sulfur to lower pH gradually",
	},
}

const (
	favorableIssue       = "Soil conditions look favorable for this crop"
	favorableImprovement = "Maintain current soil management practices"
	unsupportedAdvice    = "Consult a local agronomist for specific guidance."
)

// CropScore is one ranked crop recommendation.
type CropScore struct {
	Crop        string  `json:"crop"`
	Suitability float64 `json:"suitability"`
	Rank        int     `json:"rank"`
}

// CropAnalysis is the verdict for a crop the caller asked about.
// SuitabilityScore is nil for crops outside the catalog.
type CropAnalysis struct {
	Crop             string   `json:"crop"`
	IsSuitable       bool     `json:"is_suitable"`
	SuitabilityScore *float64 `json:"suitability_score,omitempty"`
	PotentialIssues  []string `json:"potential_issues"`
	SoilImprovements []string `json:"soil_improvements"`
}

// Recommendation is the full result for one reading.
type Recommendation struct {
	RecommendedCrops     []CropScore   `json:"recommended_crops"`
	SelectedCropAnalysis *CropAnalysis `json:"selected_crop_analysis"`
	CurrentSoilHealth    Tier          `json:"current_soil_health"`
	WeatherRisk          Tier          `json:"weather_risk"`
}

// Engine holds the per-deployment tuning for recommendations. The zero value
// uses DefaultSuitabilityThreshold.
type Engine struct {
	SuitabilityThreshold float64
}

// NewEngine returns an engine with the given suitability threshold.
func NewEngine(threshold float64) Engine {
	return Engine{SuitabilityThreshold: threshold}
}

func (e Engine) threshold() float64 {
	if e.SuitabilityThreshold <= 0 {
		return DefaultSuitabilityThreshold
	}
	return e.SuitabilityThreshold
}

// Recommend ranks the crop-model output and scores the reading. selected may
// be empty, in which case no crop analysis is attached.
func (e Engine) Recommend(probabilities []float32, labels []string, m Metrics, selected string) (Recommendation, error) {
	ranked, err := topk.SelectTopK(probabilities, labels, recommendationCount)
	if err != nil {
		return Recommendation{}, err
	}

	crops := make([]CropScore, len(ranked))
	for i, r := range ranked {
		crops[i] = CropScore{
			Crop:        r.Label,
			Suitability: mathutil.Round(float64(r.Score), 4),
			Rank:        r.Rank,
		}
	}

	rec := Recommendation{
		RecommendedCrops:  crops,
		CurrentSoilHealth: AssessSoilHealth(m.Nitrogen, m.Phosphorus, m.Potassium, m.PH),
		WeatherRisk:       AssessWeatherRisk(m.Temperature, m.Rainfall, m.Humidity),
	}

	if strings.TrimSpace(selected) != "" {
		analysis := e.AnalyzeSelectedCrop(selected, probabilities, labels, m)
		rec.SelectedCropAnalysis = &analysis
	}
	return rec, nil
}

// AnalyzeSelectedCrop checks a named crop against the catalog and the
// reading. Unknown crops get a negative verdict rather than an error.
// probabilities must be aligned with labels.
func (e Engine) AnalyzeSelectedCrop(crop string, probabilities []float32, labels []string, m Metrics) CropAnalysis {
	idx := matchCrop(crop, labels)
	if idx < 0 || idx >= len(probabilities) {
		return CropAnalysis{
			Crop:             crop,
			IsSuitable:       false,
			PotentialIssues:  []string{fmt.Sprintf("%s is not in our trained crop database.", crop)},
			SoilImprovements: []string{unsupportedAdvice},
		}
	}

	suitability := float64(probabilities[idx])
	score := mathutil.Round(suitability, 4)

	issues, improvements := checkRules(m)
	return CropAnalysis{
		Crop:             labels[idx],
		IsSuitable:       suitability > e.threshold(),
		SuitabilityScore: &score,
		PotentialIssues:  issues,
		SoilImprovements: improvements,
	}
}

func checkRules(m Metrics) (issues, improvements []string) {
	for _, r := range agronomicRules {
		if r.triggered(m) {
			issues = append(issues, r.issue)
			improvements = append(improvements, r.improvement)
		}
	}
	if len(issues) == 0 {
		return []string{favorableIssue}, []string{favorableImprovement}
	}
	return issues, improvements
}

func matchCrop(crop string, labels []string) int {
	want := strings.TrimSpace(crop)
	for i, l := range labels {
		if strings.EqualFold(l, want) {
			return i
		}
	}
	return -1
}
