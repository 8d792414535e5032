package cmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalnine/matbench/internal/result"
)

func TestParseSetFlags(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    result.ImportSettings
		wantErr bool
	}{
		{"no flags", nil, result.ImportSettings{}, false},
		{"single pair", []string{"model=llama"}, result.ImportSettings{"model": "llama"}, false},
		{"value keeps equals signs", []string{"args=a=b"}, result.ImportSettings{"args": "a=b"}, false},
		{"later pair wins", []string{"users=4", "users=8"}, result.ImportSettings{"users": "8"}, false},
		{"key is trimmed", []string{" mode =scale"}, result.ImportSettings{"mode": "scale"}, false},
		{"empty value allowed", []string{"tag="}, result.ImportSettings{"tag": ""}, false},
		{"missing equals", []string{"model"}, nil, true},
		{"empty key", []string{"=x"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSetFlags(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSetFlags(%q) error = %v, wantErr %v", tt.pairs, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseSetFlags(%q) mismatch (-want +got):\n%s", tt.pairs, diff)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"3", 3},
		{"true", true},
		{"llama", "llama"},
		{"[a, b]", []any{"a", "b"}},
		{"{x: 1}", map[string]any{"x": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseValue(tt.raw)
			if err != nil {
				t.Fatalf("parseValue(%q): %v", tt.raw, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseValue(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}

	if _, err := parseValue("[unclosed"); err == nil {
		t.Error("parseValue of invalid YAML returned no error")
	}
}
