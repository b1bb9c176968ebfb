// Package disease resolves pest-model classes into treatment advice.
package disease

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity is the urgency tier attached to a disease class.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the known tiers.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Treatment is the static advice for one disease class.
type Treatment struct {
	ID            string   `yaml:"id"`
	DisplayName   string   `yaml:"display_name"`
	AffectedCrop  string   `yaml:"affected_crop"`
	QuickFix      string   `yaml:"quick_fix"`
	PermanentFix  string   `yaml:"permanent_fix"`
	OrganicFix    *string  `yaml:"organic_fix"`
	Severity      Severity `yaml:"severity"`
	PesticideName *string  `yaml:"pesticide_name"`
}

const (
	fallbackID           = "UNKNOWN"
	fallbackQuickFix     = "Please consult a local agronomist for this issue."
	fallbackPermanentFix = "Monitor crop closely and improve general soil health."
	unknownCrop          = "Unknown"
)

//go:embed treatments.yaml
var defaultTreatments []byte

// Table maps raw class strings to treatments. It is read-only after load and
// safe for concurrent use.
type Table struct {
	records map[string]Treatment
}

// DefaultTable returns the table compiled into the binary.
func DefaultTable() (*Table, error) {
	return LoadTable(bytes.NewReader(defaultTreatments))
}

// LoadTableFile reads a treatment table from a YAML file.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open treatment table: %w", err)
	}
	defer f.Close()

	return LoadTable(f)
}

// LoadTable decodes and validates a YAML treatment table.
func LoadTable(r io.Reader) (*Table, error) {
	records := make(map[string]Treatment)
	if err := yaml.NewDecoder(r).Decode(&records); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode treatment table: %w", err)
	}

	for class, rec := range records {
		if err := validateTreatment(class, rec); err != nil {
			return nil, err
		}
		if rec.AffectedCrop == "" {
			rec.AffectedCrop = affectedCrop(class)
			records[class] = rec
		}
	}

	return &Table{records: records}, nil
}

func validateTreatment(class string, rec Treatment) error {
	switch {
	case strings.TrimSpace(class) == "":
		return fmt.Errorf("treatment table: empty class key")
	case rec.ID == "":
		return fmt.Errorf("treatment table: %q has no id", class)
	case rec.DisplayName == "":
		return fmt.Errorf("treatment table: %q has no display_name", class)
	case rec.QuickFix == "" || rec.PermanentFix == "":
		return fmt.Errorf("treatment table: %q needs quick_fix and permanent_fix", class)
	case !rec.Severity.Valid():
		return fmt.Errorf("treatment table: %q has invalid severity %q", class, rec.Severity)
	}
	return nil
}

// Len returns the number of classes with explicit advice.
func (t *Table) Len() int {
	return len(t.records)
}

// Classes returns the classes with explicit advice, sorted.
func (t *Table) Classes() []string {
	out := make([]string, 0, len(t.records))
	for class := range t.records {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the stored treatment for class, if any.
func (t *Table) Lookup(class string) (Treatment, bool) {
	rec, ok := t.records[class]
	if !ok {
		return Treatment{}, false
	}
	return rec.clone(), true
}

// Resolve returns the treatment for class, synthesizing generic advice for
// classes the table does not know. It never fails.
func (t *Table) Resolve(class string) Treatment {
	if rec, ok := t.Lookup(class); ok {
		return rec
	}
	return Fallback(class)
}

// Fallback builds the generic medium-severity advice used for unknown classes.
func Fallback(class string) Treatment {
	return Treatment{
		ID:           fallbackID,
		DisplayName:  strings.ReplaceAll(strings.ReplaceAll(class, classSeparator, " - "), "_", " "),
		AffectedCrop: affectedCrop(class),
		QuickFix:     fallbackQuickFix,
		PermanentFix: fallbackPermanentFix,
		Severity:     SeverityMedium,
	}
}

func (rec Treatment) clone() Treatment {
	if rec.OrganicFix != nil {
		v := *rec.OrganicFix
		rec.OrganicFix = &v
	}
	if rec.PesticideName != nil {
		v := *rec.PesticideName
		rec.PesticideName = &v
	}
	return rec
}

func affectedCrop(class string) string {
	if !strings.Contains(class, classSeparator) {
		return unknownCrop
	}
	crop, _ := ParseClass(class)
	return crop
}
