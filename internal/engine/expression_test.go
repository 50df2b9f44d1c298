package engine

import (
	"errors"
	"testing"
)

func TestEvaluateExpression(t *testing.T) {
	vc := VisitContext{URL: "example.com/pricing", Country: "US", IP: "1.2.3.4"}

	tests := []struct {
		name       string
		expression string
		want       bool
		wantErr    bool
	}{
		{"country equals", `{"==": [{"var": "country"}, "US"]}`, true, false},
		{"country differs", `{"==": [{"var": "country"}, "FR"]}`, false, false},
		{"url contains", `{"in": ["pricing", {"var": "url"}]}`, true, false},
		{"and of two", `{"and": [{"==": [{"var": "country"}, "US"]}, {"in": ["pricing", {"var": "url"}]}]}`, true, false},
		{"constant true", `true`, true, false},
		{"constant false", `false`, false, false},
		{"empty expression", ``, false, true},
		{"whitespace expression", `   `, false, true},
		{"broken json", `{"==": [`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateExpression(tt.expression, vc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EvaluateExpression() error = %v, wantErr %t", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("EvaluateExpression() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestValidateExpression(t *testing.T) {
	if err := ValidateExpression(`{"==": [{"var": "country"}, "US"]}`); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateExpression(``); !errors.Is(err, ErrEmptyExpression) {
		t.Errorf("expected ErrEmptyExpression, got %v", err)
	}
	if err := ValidateExpression(`{"==": [`); !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("expected ErrInvalidExpression, got %v", err)
	}
}
