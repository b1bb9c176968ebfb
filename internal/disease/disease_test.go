package disease

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/agri-ml/internal/topk"
)

func mustDefaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := DefaultTable()
	require.NoError(t, err)
	return table
}

func TestDefaultTableLoads(t *testing.T) {
	table := mustDefaultTable(t)
	assert.Positive(t, table.Len())

	for _, class := range table.Classes() {
		rec, ok := table.Lookup(class)
		require.True(t, ok, class)
		assert.True(t, rec.Severity.Valid(), class)
		assert.NotEmpty(t, rec.AffectedCrop, class)
	}
}

func TestParseClass(t *testing.T) {
	tests := []struct {
		class   string
		crop    string
		disease string
	}{
		{"Tomato___Early_blight", "Tomato", "Early_blight"},
		{"Corn_(maize)___Common_rust_", "Corn (maize)", "Common_rust_"},
		{"Pepper,_bell___healthy", "Pepper, bell", "healthy"},
		{"Soybean_healthy", "Soybean healthy", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			crop, disease := ParseClass(tt.class)
			assert.Equal(t, tt.crop, crop)
			assert.Equal(t, tt.disease, disease)
		})
	}
}

func TestResolveKnownClass(t *testing.T) {
	table := mustDefaultTable(t)

	rec := table.Resolve("Potato___Late_blight")
	assert.Equal(t, "POT_LB_001", rec.ID)
	assert.Equal(t, SeverityHigh, rec.Severity)
	require.NotNil(t, rec.PesticideName)
	require.NotNil(t, rec.OrganicFix)
}

func TestResolveUnknownClassFallsBack(t *testing.T) {
	table := mustDefaultTable(t)

	tests := []struct {
		class       string
		displayName string
		crop        string
	}{
		{"Cassava___Mosaic_virus", "Cassava - Mosaic virus", "Cassava"},
		{"Orange___Haunglongbing_(Citrus_greening)", "Orange - Haunglongbing (Citrus greening)", "Orange"},
		{"mystery_class", "mystery class", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			rec := table.Resolve(tt.class)
			assert.Equal(t, "UNKNOWN", rec.ID)
			assert.Equal(t, SeverityMedium, rec.Severity)
			assert.Equal(t, tt.displayName, rec.DisplayName)
			assert.Equal(t, tt.crop, rec.AffectedCrop)
			assert.Nil(t, rec.OrganicFix)
			assert.Nil(t, rec.PesticideName)
			assert.NotEmpty(t, rec.QuickFix)
			assert.NotEmpty(t, rec.PermanentFix)
		})
	}
}

func TestResolveReturnsCopies(t *testing.T) {
	table := mustDefaultTable(t)

	first := table.Resolve("Tomato___Early_blight")
	require.NotNil(t, first.OrganicFix)
	*first.OrganicFix = "tampered"

	second := table.Resolve("Tomato___Early_blight")
	assert.NotEqual(t, "tampered", *second.OrganicFix)
}

func TestLoadTableRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "bad severity",
			doc:  "X___y:\n  id: A\n  display_name: A\n  quick_fix: q\n  permanent_fix: p\n  severity: extreme\n",
			want: "invalid severity",
		},
		{
			name: "missing id",
			doc:  "X___y:\n  display_name: A\n  quick_fix: q\n  permanent_fix: p\n  severity: low\n",
			want: "has no id",
		},
		{
			name: "missing fixes",
			doc:  "X___y:\n  id: A\n  display_name: A\n  severity: low\n",
			want: "quick_fix and permanent_fix",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTable(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTableFillsAffectedCrop(t *testing.T) {
	doc := "Rice___Blast:\n  id: RCE_BL_001\n  display_name: Rice Blast\n  quick_fix: q\n  permanent_fix: p\n  severity: high\n"
	table, err := LoadTable(strings.NewReader(doc))
	require.NoError(t, err)

	rec, ok := table.Lookup("Rice___Blast")
	require.True(t, ok)
	assert.Equal(t, "Rice", rec.AffectedCrop)
}

func TestLoadTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treatments.yaml")
	doc := "Wheat___Rust:\n  id: WHT_RS_001\n  display_name: Wheat Rust\n  quick_fix: q\n  permanent_fix: p\n  severity: medium\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	table, err := LoadTableFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	_, err = LoadTableFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDiagnose(t *testing.T) {
	table := mustDefaultTable(t)
	labels := []string{"Tomato___healthy", "Tomato___Early_blight", "Tomato___Late_blight", "Potato___Early_blight"}
	probs := []float32{0.05, 0.81234, 0.1, 0.03766}

	got, err := Diagnose(table, probs, labels)
	require.NoError(t, err)

	assert.Equal(t, "Tomato Early Blight", got.Disease)
	assert.Equal(t, 0.8123, got.Confidence)
	assert.Equal(t, "Tomato", got.Crop)
	assert.Equal(t, SeverityMedium, got.Severity)
	assert.Equal(t, "TOM_EB_001", got.TreatmentID)
	assert.Equal(t, "Tomato___Early_blight", got.RawClass)

	want := []Candidate{
		{Class: "Tomato___Early_blight", Confidence: 0.8123},
		{Class: "Tomato___Late_blight", Confidence: 0.1},
		{Class: "Tomato___healthy", Confidence: 0.05},
	}
	if diff := cmp.Diff(want, got.Top3); diff != "" {
		t.Errorf("Top3 mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagnoseUnknownWinner(t *testing.T) {
	table := mustDefaultTable(t)
	labels := []string{"Cassava___Brown_streak", "Tomato___healthy"}

	got, err := Diagnose(table, []float32{0.9, 0.1}, labels)
	require.NoError(t, err)
	assert.Equal(t, SeverityMedium, got.Severity)
	assert.Equal(t, "Cassava", got.Crop)
	assert.Equal(t, "UNKNOWN", got.TreatmentID)
	assert.Nil(t, got.OrganicFix)
}

func TestDiagnoseIsIdempotent(t *testing.T) {
	table := mustDefaultTable(t)
	labels := []string{"Grape___Black_rot", "Unlisted___Thing"}
	probs := []float32{0.3, 0.7}

	first, err := Diagnose(table, probs, labels)
	require.NoError(t, err)
	second, err := Diagnose(table, probs, labels)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated diagnosis differs (-first +second):\n%s", diff)
	}
}

func TestDiagnoseErrors(t *testing.T) {
	table := mustDefaultTable(t)

	_, err := Diagnose(table, []float32{1}, []string{"a", "b"})
	assert.True(t, errors.Is(err, topk.ErrShapeMismatch))

	_, err = Diagnose(table, nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyCatalog))
}
