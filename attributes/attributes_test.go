package attributes

import (
	"path/filepath"
	"testing"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/process"
)

func testSchema() *Schema {
	return NewSchema("bids",
		Group{Name: "subject", Attributes: []string{"sub", "ses"}},
		Group{Name: "acquisition", Attributes: []string{"data_type", "extension"},
			Defaults: map[string]any{"extension": "nii.gz"}},
	)
}

func biasCorrection(t *testing.T) process.Process {
	t.Helper()
	p, err := process.NewFunc("test.BiasCorrection", nil,
		process.Field("t1mri", controller.File),
		process.Field("strength", controller.Float),
		process.Field("nobias", controller.File, controller.Write()),
		process.Field("histo", controller.ListOf(controller.File), controller.Write()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

// --- schema ---

func TestLoadSchema(t *testing.T) {
	s, err := LoadSchema([]byte(`
name: bids
groups:
  subject:
    attributes: [sub, ses]
  acquisition:
    attributes: [data_type, extension]
    defaults: {extension: nii.gz}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g, err := s.Group("acquisition")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Name != "acquisition" || g.Defaults["extension"] != "nii.gz" {
		t.Errorf("unexpected group %+v", g)
	}
	if _, err := s.Group("missing"); !errors.HasCode(err, errors.ErrCodeUnknownAttribute) {
		t.Errorf("expected UNKNOWN_ATTRIBUTE, got %v", err)
	}
}

func TestLoadSchemaInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "name: [unclosed"},
		{"no name", "groups: {g: {attributes: [a]}}"},
		{"empty group", "name: s\ngroups: {g: {attributes: []}}"},
		{"unknown default", "name: s\ngroups: {g: {attributes: [a], defaults: {b: 1}}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadSchema([]byte(tt.data)); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

// --- process attributes ---

func TestSetParameterAttributes(t *testing.T) {
	pa := New(biasCorrection(t), testSchema())
	if err := pa.SetParameterAttributes("t1mri", []string{"subject", "acquisition"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := pa.SetParameterAttributes("t1mri", []string{"subject"}, nil)
	if !errors.HasCode(err, errors.ErrCodeDuplicateAttributeBinding) {
		t.Errorf("expected DUPLICATE_ATTRIBUTE_BINDING, got %v", err)
	}
	err = pa.SetParameterAttributes("nobias", []string{"unknown"}, nil)
	if !errors.HasCode(err, errors.ErrCodeUnknownAttribute) {
		t.Errorf("expected UNKNOWN_ATTRIBUTE, got %v", err)
	}
	if err := pa.SetParameterAttributes("missing", nil, nil); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	want := []string{"sub", "ses", "data_type", "extension"}
	got := pa.Attributes()
	if len(got) != len(want) {
		t.Fatalf("expected attributes %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected attributes %v, got %v", want, got)
			break
		}
	}
	if v, _ := pa.Get("extension"); v != "nii.gz" {
		t.Errorf("expected default extension, got %v", v)
	}
	if err := pa.Set("center", "x"); !errors.HasCode(err, errors.ErrCodeUnknownAttribute) {
		t.Errorf("expected UNKNOWN_ATTRIBUTE, got %v", err)
	}
}

func TestParametersAttributes(t *testing.T) {
	pa := New(biasCorrection(t), testSchema())
	_ = pa.SetParameterAttributes("t1mri", []string{"subject", "acquisition"}, map[string]any{"data_type": "anat"})
	_ = pa.SetParameterAttributes("nobias", []string{"subject", "acquisition"}, map[string]any{"process": "biascorr"})
	if err := pa.SetValues(map[string]any{"sub": "01", "ses": "m0", "data_type": "func"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := pa.ParametersAttributes()
	if _, ok := all["strength"]; ok {
		t.Error("expected no attributes for an unbound input")
	}
	in := all["t1mri"]
	if in["sub"] != "01" || in["data_type"] != "anat" {
		t.Errorf("expected fixed values to win over editable ones, got %v", in)
	}
	if _, ok := in[GeneratedByProcess]; ok {
		t.Error("expected no generated_by attributes on inputs")
	}
	out := all["nobias"]
	if out[GeneratedByProcess] != "BiasCorrection" || out[GeneratedByParameter] != "nobias" {
		t.Errorf("expected generated_by attributes, got %v", out)
	}
	histo := all["histo"]
	if len(histo) != 2 || histo[GeneratedByParameter] != "histo" {
		t.Errorf("expected only generated_by attributes on unbound outputs, got %v", histo)
	}
}

// --- path builders ---

func TestBIDS(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]any
		want    string
		wantErr errors.ErrorCode
	}{
		{
			name:  "raw data",
			attrs: map[string]any{"folder": "rawdata", "sub": "01", "ses": "m0", "data_type": "anat", "suffix": "T1w", "extension": "nii.gz"},
			want:  "/data/rawdata/sub-01/ses-m0/anat/sub-01_ses-m0_T1w.nii.gz",
		},
		{
			name:  "entities and derivative",
			attrs: map[string]any{"process": "biascorr", "sub": "01", "ses": "m0", "task": "rest", "run": 2, "extension": "nii"},
			want:  "/data/derivative/biascorr/sub-01/ses-m0/sub-01_ses-m0_task-rest_run-2.nii",
		},
		{
			name:    "process outside derivative",
			attrs:   map[string]any{"folder": "rawdata", "process": "p", "sub": "01", "ses": "m0", "extension": "nii"},
			wantErr: errors.ErrCodeInvalidInput,
		},
		{
			name:    "no data type",
			attrs:   map[string]any{"sub": "01", "ses": "m0", "extension": "nii"},
			wantErr: errors.ErrCodeInvalidInput,
		},
		{
			name:    "missing subject",
			attrs:   map[string]any{"ses": "m0", "data_type": "anat", "extension": "nii"},
			wantErr: errors.ErrCodeMissingField,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BIDS{Root: "/data"}.BuildPath(tt.attrs)
			if tt.wantErr != "" {
				if !errors.HasCode(err, tt.wantErr) {
					t.Fatalf("expected %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestBrainVISA(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{
			name:  "defaults",
			attrs: map[string]any{"center": "cati", "subject": "s01", "modality": "t1mri", "extension": "nii"},
			want:  "/db/cati/s01/t1mri/default_acquisition/default_analysis/s01.nii",
		},
		{
			name: "prefix and suffix",
			attrs: map[string]any{
				"center": "cati", "subject": "s01", "acquisition": "m0", "analysis": "a1",
				"seg_directory": "segmentation/mesh", "prefix": "nobias", "side": "L", "suffix": "white",
				"longitudinal": []any{"m0", "m12"}, "extension": "gii",
			},
			want: "/db/cati/s01/m0/a1/segmentation/mesh/Lnobias_s01_to_avg_m0_m12_white.gii",
		},
		{
			name: "sulci session without subject in filename",
			attrs: map[string]any{
				"center": "c", "subject": "s", "sulci_graph_version": "3.1", "sulci_recognition_session": "session1",
				"subject_in_filename": false, "suffix": "graph", "extension": "arg",
			},
			want: "/db/c/s/default_acquisition/default_analysis/3.1/session1_auto/graph.arg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BrainVISA{Root: "/db"}.BuildPath(tt.attrs)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
	if _, err := (BrainVISA{}).BuildPath(map[string]any{"center": "c"}); !errors.HasCode(err, errors.ErrCodeMissingField) {
		t.Errorf("expected MISSING_FIELD, got %v", err)
	}
}

func TestNewPathBuilder(t *testing.T) {
	for _, layout := range []string{"bids", "brainvisa"} {
		if _, err := NewPathBuilder(layout, "/data"); err != nil {
			t.Errorf("%s: unexpected error: %v", layout, err)
		}
	}
	if _, err := NewPathBuilder("fom", "/data"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

// --- completion ---

func TestComplete(t *testing.T) {
	proc := biasCorrection(t)
	pa := New(proc, testSchema())
	_ = pa.SetParameterAttributes("t1mri", []string{"subject", "acquisition"},
		map[string]any{"folder": "rawdata", "data_type": "anat", "suffix": "T1w"})
	_ = pa.SetParameterAttributes("nobias", []string{"subject", "acquisition"},
		map[string]any{"process": "biascorr", "suffix": "nobias"})
	_ = pa.SetParameterAttributes("histo", []string{"subject", "acquisition"},
		map[string]any{"process": "biascorr", "suffix": "histo", "extension": "txt"})
	_ = pa.SetParameterAttributes("strength", []string{"subject"}, nil)
	if err := pa.SetValues(map[string]any{"sub": "01", "ses": "m0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assigned, err := Complete(pa, BIDS{Root: "/data"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := assigned["strength"]; ok {
		t.Error("expected non path parameters to be left alone")
	}
	ctrl := proc.Controller()
	if got, want := ctrl.Get("t1mri"), filepath.FromSlash("/data/rawdata/sub-01/ses-m0/anat/sub-01_ses-m0_T1w.nii.gz"); got != want {
		t.Errorf("expected %s, got %v", want, got)
	}
	if got, want := ctrl.Get("nobias"), filepath.FromSlash("/data/derivative/biascorr/sub-01/ses-m0/sub-01_ses-m0_nobias.nii.gz"); got != want {
		t.Errorf("expected %s, got %v", want, got)
	}
	histo, _ := ctrl.Get("histo").([]any)
	if len(histo) != 1 {
		t.Errorf("expected one histogram path, got %v", ctrl.Get("histo"))
	}
}

func TestCompleteLists(t *testing.T) {
	proc := biasCorrection(t)
	pa := New(proc, testSchema())
	_ = pa.SetParameterAttributes("histo", []string{"subject", "acquisition"},
		map[string]any{"process": "biascorr", "extension": "txt"})
	_ = pa.SetValues(map[string]any{"sub": []any{"01", "02", "03"}, "ses": "m0"})

	assigned, err := Complete(pa, BIDS{Root: "/data"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	paths, _ := assigned["histo"].([]any)
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %v", assigned["histo"])
	}
	if want := filepath.FromSlash("/data/derivative/biascorr/sub-02/ses-m0/sub-02_ses-m0.txt"); paths[1] != want {
		t.Errorf("expected %s, got %v", want, paths[1])
	}

	_ = pa.Set("ses", []any{"m0"})
	if _, err := Complete(pa, BIDS{Root: "/data"}); !errors.HasCode(err, errors.ErrCodeIterationShape) {
		t.Errorf("expected ITERATION_SHAPE, got %v", err)
	}
}
