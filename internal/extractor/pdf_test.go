package extractor

import (
	"strings"
	"testing"
)

func TestIsReadableText(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  bool
	}{
		{"statement text", []string{"Bancolombia\nExtracto de cuenta de ahorros\nFecha Descripción Valor Saldo\n01/01/2024 ABONO NÓMINA 2.000.000"}, true},
		{"too short", []string{"saldo"}, false},
		{"garbage", []string{strings.Repeat("\x01\x02", 30)}, false},
		{"no statement words", []string{strings.Repeat("lorem ipsum dolor sit amet ", 5)}, false},
	}
	for _, tt := range tests {
		if got := isReadableText(tt.pages); got != tt.want {
			t.Errorf("%s: isReadableText = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInspect_RejectsNonPDF(t *testing.T) {
	if _, err := Inspect([]byte("this is not a pdf")); err == nil {
		t.Error("expected error for non-PDF input")
	}
}
