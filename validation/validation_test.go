package validation

import (
	"testing"

	"github.com/google/uuid"

	"github.com/kbukum/capsule/errors"
)

type sampleConfig struct {
	Workers int    `mapstructure:"workers" validate:"gte=1"`
	Driver  string `mapstructure:"driver" validate:"oneof=memory sqlite"`
	Nested  struct {
		Root string `mapstructure:"root" validate:"required"`
	} `mapstructure:"nested"`
}

func TestValidate_Struct(t *testing.T) {
	var cfg sampleConfig
	cfg.Workers = 0
	cfg.Driver = "postgres"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", appErr.Details["fields"])
	}
	want := map[string]bool{"workers": true, "driver": true, "nested.root": true}
	for _, f := range fields {
		if !want[f.Field] {
			t.Errorf("unexpected field %q", f.Field)
		}
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := sampleConfig{Workers: 2, Driver: "sqlite"}
	cfg.Nested.Root = "/tmp"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidator_Programmatic(t *testing.T) {
	tests := []struct {
		name    string
		build   func(v *Validator)
		wantErr bool
	}{
		{"required ok", func(v *Validator) { v.Required("name", "node1") }, false},
		{"required blank", func(v *Validator) { v.Required("name", "  ") }, true},
		{"uuid ok", func(v *Validator) { v.RequiredUUID("uuid", uuid.NewString()) }, false},
		{"uuid nil", func(v *Validator) { v.RequiredUUID("uuid", uuid.Nil.String()) }, true},
		{"uuid garbage", func(v *Validator) { v.RequiredUUID("uuid", "nope") }, true},
		{"oneof", func(v *Validator) { v.OneOf("status", "done", "waiting", "done") }, false},
		{"oneof miss", func(v *Validator) { v.OneOf("status", "lost", "waiting", "done") }, true},
		{"check", func(v *Validator) { v.Check(false, "x", "bad") }, true},
		{"min", func(v *Validator) { v.Min("n", 0, 1) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			tt.build(v)
			if got := v.Validate() != nil; got != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", v.Errors(), tt.wantErr)
			}
		})
	}
}
