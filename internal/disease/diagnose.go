package disease

import (
	"errors"
	"strings"

	"github.com/Brownie44l1/agri-ml/internal/mathutil"
	"github.com/Brownie44l1/agri-ml/internal/topk"
)

const (
	classSeparator = "___"
	shortlistSize  = 3
)

// ErrEmptyCatalog is returned when there is no class to pick a winner from.
var ErrEmptyCatalog = errors.New("label catalog is empty")

// Candidate is one entry of the shortlist returned with a diagnosis.
type Candidate struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Diagnosis is the structured result for one image.
type Diagnosis struct {
	Disease      string      `json:"disease"`
	Confidence   float64     `json:"confidence"`
	Crop         string      `json:"crop"`
	QuickFix     string      `json:"quick_fix"`
	PermanentFix string      `json:"permanent_fix"`
	OrganicFix   *string     `json:"organic_fix"`
	Severity     Severity    `json:"severity"`
	TreatmentID  string      `json:"treatment_id"`
	Pesticide    *string     `json:"pesticide"`
	RawClass     string      `json:"raw_class"`
	Top3         []Candidate `json:"top_3"`
}

// ParseClass splits a "<Crop>___<Disease>" class into its parts, turning
// underscores in the crop into spaces. A class without the separator is
// treated as a bare crop name.
func ParseClass(class string) (crop, disease string) {
	crop, disease, _ = strings.Cut(class, classSeparator)
	return strings.ReplaceAll(crop, "_", " "), disease
}

// Diagnose ranks the classifier output and attaches treatment advice for the
// winning class. It only fails when probabilities and labels disagree in
// length or there are no labels.
func Diagnose(table *Table, probabilities []float32, labels []string) (Diagnosis, error) {
	ranked, err := topk.SelectTopK(probabilities, labels, shortlistSize)
	if err != nil {
		return Diagnosis{}, err
	}
	if len(ranked) == 0 {
		return Diagnosis{}, ErrEmptyCatalog
	}

	best := ranked[0]
	rec := table.Resolve(best.Label)
	crop, _ := ParseClass(best.Label)

	top := make([]Candidate, len(ranked))
	for i, r := range ranked {
		top[i] = Candidate{
			Class:      r.Label,
			Confidence: mathutil.Round(float64(r.Score), 4),
		}
	}

	return Diagnosis{
		Disease:      rec.DisplayName,
		Confidence:   mathutil.Round(float64(best.Score), 4),
		Crop:         crop,
		QuickFix:     rec.QuickFix,
		PermanentFix: rec.PermanentFix,
		OrganicFix:   rec.OrganicFix,
		Severity:     rec.Severity,
		TreatmentID:  rec.ID,
		Pesticide:    rec.PesticideName,
		RawClass:     best.Label,
		Top3:         top,
	}, nil
}
