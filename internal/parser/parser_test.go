package parser

import (
	"errors"
	"testing"
)

func TestRegistryDetect(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		wantErr  bool
	}{
		{
			name:     "detects Bancolombia",
			raw:      "Bancolombia S.A.\nFecha,Descripción,Valor\n01/01/2024,ABONO,100\n",
			expected: "Bancolombia",
		},
		{
			name:     "Nequi wins over Bancolombia mention",
			raw:      "Nequi - Bancolombia\nFecha,Descripción,Valor\n2024-01-01,Recarga,100\n",
			expected: "Nequi",
		},
		{
			name:     "detects Davivienda",
			raw:      "BANCO DAVIVIENDA\nFecha;Descripción;Valor\n01/01/2024;ABONO;100\n",
			expected: "Davivienda",
		},
		{
			name:     "detects BBVA",
			raw:      "BBVA Colombia\nF. Operación,Concepto,Importe\n",
			expected: "BBVA Colombia",
		},
		{
			name:     "detects Banco de Bogotá",
			raw:      "Banco de Bogotá\nFecha,Descripción,Débito,Crédito\n",
			expected: "Banco de Bogotá",
		},
		{
			name:     "wallet named in a transfer row",
			raw:      "Bancolombia S.A.\nFecha,Descripción,Valor\n02/01/2024,TRANSFERENCIA A NEQUI,50000,\n",
			expected: "Bancolombia",
		},
		{
			name:     "other bank named in a transfer row",
			raw:      "BBVA Colombia\nFecha,Concepto,Importe\n03/01/2024,TRANSF DAVIPLATA DAVIVIENDA,-20000\n",
			expected: "BBVA Colombia",
		},
		{
			name:     "bank name only in rows",
			raw:      "Date,Description,Amount\n2024-01-01,PAGO NEQUI,-5\n",
			expected: "Unknown bank",
		},
		{
			name:     "detects OFX",
			raw:      "OFXHEADER:100\nDATA:OFXSGML\n\n<OFX>\n",
			expected: "OFX",
		},
		{
			name:     "falls back to header shape",
			raw:      "Date,Description,Amount\n2024-01-01,Coffee,-5\n",
			expected: "Unknown bank",
		},
		{
			name:    "unknown format returns error",
			raw:     "hello world, this is not a statement",
			wantErr: true,
		},
	}

	reg := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Detect(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrFormatNotRecognized) {
					t.Errorf("expected ErrFormatNotRecognized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.BankName() != tt.expected {
				t.Errorf("got %q, want %q", got.BankName(), tt.expected)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		bank     string
		wantName string
		wantErr  bool
	}{
		{"bancolombia", "Bancolombia", false},
		{"Nequi", "Nequi", false},
		{"davivienda", "Davivienda", false},
		{"bbva", "BBVA Colombia", false},
		{"bogota", "Banco de Bogotá", false},
		{"ofx", "OFX", false},
		{"generic", "Unknown bank", false},
		{"hsbc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.bank, func(t *testing.T) {
			p, err := New(tt.bank)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unsupported bank")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.BankName() != tt.wantName {
				t.Errorf("got %q, want %q", p.BankName(), tt.wantName)
			}
		})
	}
}

func TestRegistryRegisterOrder(t *testing.T) {
	reg := NewRegistry(NewGenericParser())
	reg.Register(NewBancolombiaParser())

	raw := "Bancolombia\nFecha,Descripción,Valor\n01/01/2024,ABONO,100\n"
	p, err := reg.Detect(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.BankName() != "Unknown bank" {
		t.Errorf("first registered parser should win, got %q", p.BankName())
	}
	if len(reg.parsers) != 2 {
		t.Errorf("expected 2 parsers, got %d", len(reg.parsers))
	}
}

func TestRegistryDetect_DebitCreditHeader(t *testing.T) {
	reg := DefaultRegistry()

	p, err := reg.Detect("Fecha,Descripción,Débito,Crédito\n01/01/2024,ABONO NOMINA,,2000000\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*DebitCreditParser); !ok {
		t.Errorf("got %T, want *DebitCreditParser", p)
	}

	p, err = reg.Detect("Date,Description,Debit,Credit\n2024-01-01,Coffee,5,\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*GenericParser); !ok {
		t.Errorf("English headers: got %T, want *GenericParser", p)
	}
}
