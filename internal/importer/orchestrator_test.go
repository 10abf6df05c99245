package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-import/internal/advisor"
	"github.com/insightdelivered/statement-import/internal/dedup"
	"github.com/insightdelivered/statement-import/internal/extractor"
	"github.com/insightdelivered/statement-import/internal/llm"
	"github.com/insightdelivered/statement-import/internal/models"
	"github.com/insightdelivered/statement-import/internal/parser"
	"github.com/insightdelivered/statement-import/internal/reconcile"
)

const statementCSV = `Bancolombia S.A.
Extracto Cuenta de Ahorros
Fecha,Descripción,Débito,Crédito
01/01/2024,ABONO NOMINA,,2000000
05/01/2024,COMPRA EXITO,45000,
08/01/2024,PAGO TC VISA,300000,
Saldo final,,,1955000
`

type fakeSource struct {
	txns  []models.Transaction
	err   error
	asked string
}

func (f *fakeSource) AccountTransactions(_ context.Context, accountID string) ([]models.Transaction, error) {
	f.asked = accountID
	return f.txns, f.err
}

type fakeAudit struct {
	attempts []models.ImportAttempt
	err      error
}

func (f *fakeAudit) RecordAttempt(_ context.Context, a models.ImportAttempt) error {
	f.attempts = append(f.attempts, a)
	return f.err
}

func newOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	adv, err := advisor.New(nil)
	require.NoError(t, err)
	return New(parser.DefaultRegistry(), dedup.New(dedup.DefaultConfig()), adv,
		reconcile.New(reconcile.DefaultConfig(), nil, nil), opts...)
}

func TestImport_NewAccount(t *testing.T) {
	audit := &fakeAudit{}
	o := newOrchestrator(t, WithAuditRecorder(audit))

	res, err := o.Import(context.Background(), Upload{Filename: "enero.csv", Data: []byte(statementCSV)})
	require.NoError(t, err)

	assert.Equal(t, SourceCSV, res.Source)
	assert.Equal(t, "Bancolombia", res.Account.BankName)
	require.Len(t, res.Transactions, 3)
	assert.Empty(t, res.Duplicates)
	assert.Equal(t, "1655000.00", res.Calculated)

	require.NotNil(t, res.Reconciliation)
	assert.Equal(t, reconcile.StateAwaitingMethod, res.Reconciliation.State())
	assert.True(t, res.Reconciliation.Difference.Equal(decimal.NewFromInt(300000)))

	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, models.SuggestCreditCard, res.Suggestions[0].Type)

	require.Len(t, audit.attempts, 1)
	a := audit.attempts[0]
	assert.Equal(t, res.AttemptID, a.ID)
	assert.Equal(t, "enero.csv", a.Filename)
	assert.Equal(t, SourceCSV, a.Source)
	assert.Equal(t, "Bancolombia", a.BankName)
	assert.Equal(t, 3, a.TransactionCount)
	assert.True(t, a.Succeeded())
}

func TestImport_ReimportIsAllDuplicates(t *testing.T) {
	existing := []models.Transaction{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(2000000), Description: "ABONO NOMINA"},
		{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(-45000), Description: "COMPRA EXITO"},
	}
	src := &fakeSource{txns: existing}
	o := newOrchestrator(t, WithTransactionSource(src))

	raw := strings.Replace(statementCSV, "08/01/2024,PAGO TC VISA,300000,\n", "", 1)
	res, err := o.Import(context.Background(), Upload{Filename: "enero.csv", Data: []byte(raw), TargetAccountID: "acc-1"})
	require.NoError(t, err)

	assert.Equal(t, "acc-1", src.asked)
	assert.Len(t, res.Duplicates, 2)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, 100.0, res.DuplicatePercentage)
	assert.Empty(t, res.Suggestions)
	require.NotNil(t, res.Reconciliation)
	assert.Equal(t, reconcile.StateNotRequired, res.Reconciliation.State())
}

func TestImport_AppendKeepsUniqueRows(t *testing.T) {
	src := &fakeSource{txns: []models.Transaction{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(2000000), Description: "Abono Nómina"},
	}}
	o := newOrchestrator(t, WithTransactionSource(src))

	res, err := o.Import(context.Background(), Upload{Filename: "enero.csv", Data: []byte(statementCSV), TargetAccountID: "acc-1"})
	require.NoError(t, err)

	require.Len(t, res.Duplicates, 1)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, "COMPRA EXITO", res.Transactions[0].Description)
	assert.Equal(t, "PAGO TC VISA", res.Transactions[1].Description)
	assert.InDelta(t, 33.33, res.DuplicatePercentage, 0.01)
}

func TestImport_SourceFailure(t *testing.T) {
	audit := &fakeAudit{}
	o := newOrchestrator(t, WithTransactionSource(&fakeSource{err: errors.New("db down")}), WithAuditRecorder(audit))

	_, err := o.Import(context.Background(), Upload{Filename: "enero.csv", Data: []byte(statementCSV), TargetAccountID: "acc-1"})
	require.Error(t, err)
	require.Len(t, audit.attempts, 1)
	assert.Contains(t, audit.attempts[0].Failure, "db down")
}

func TestImport_FailuresAreAudited(t *testing.T) {
	tests := []struct {
		name    string
		upload  Upload
		wantErr error
		source  string
	}{
		{"unsupported extension", Upload{Filename: "notes.docx", Data: []byte("x")}, ErrUnsupportedFile, ""},
		{"unrecognized text", Upload{Filename: "a.csv", Data: []byte("hello\nworld\n")}, parser.ErrFormatNotRecognized, SourceCSV},
		{"no transactions", Upload{Filename: "a.csv", Data: []byte("Bancolombia\nFecha,Descripción,Valor\n")}, parser.ErrNoTransactions, SourceCSV},
		{"image without reader", Upload{Filename: "scan.jpg", Data: []byte("jpeg")}, llm.ErrUnavailable, SourceOCR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &fakeAudit{}
			o := newOrchestrator(t, WithAuditRecorder(audit))

			res, err := o.Import(context.Background(), tt.upload)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)

			require.Len(t, audit.attempts, 1)
			assert.False(t, audit.attempts[0].Succeeded())
			assert.Equal(t, tt.source, audit.attempts[0].Source)
			assert.NotEmpty(t, audit.attempts[0].ID)
		})
	}
}

func TestImport_AuditFailureIsNotFatal(t *testing.T) {
	o := newOrchestrator(t, WithAuditRecorder(&fakeAudit{err: errors.New("disk full")}))
	res, err := o.Import(context.Background(), Upload{Filename: "enero.csv", Data: []byte(statementCSV)})
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 3)
}

func TestImport_ForcedBank(t *testing.T) {
	o := newOrchestrator(t)
	raw := "Fecha,Descripción,Valor\n2024-03-01,Recarga,200000\n"

	res, err := o.Import(context.Background(), Upload{Filename: "nequi.csv", Data: []byte(raw), Bank: "nequi"})
	require.NoError(t, err)
	assert.Equal(t, "Nequi", res.Account.BankName)

	_, err = o.Import(context.Background(), Upload{Filename: "x.csv", Data: []byte(raw), Bank: "chase"})
	assert.Error(t, err)
}

func TestImport_XLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Bancolombia S.A."},
		{"Fecha", "Descripción", "Débito", "Crédito"},
		{"01/01/2024", "ABONO NOMINA", "", "2000000"},
		{},
		{"05/01/2024", "COMPRA EXITO", "45000", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	o := newOrchestrator(t)
	res, err := o.Import(context.Background(), Upload{Filename: "movimientos.xlsx", Data: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, SourceXLSX, res.Source)
	assert.Equal(t, "Bancolombia", res.Account.BankName)
	require.Len(t, res.Transactions, 2)
	assert.True(t, res.Transactions[1].Amount.Equal(decimal.NewFromInt(-45000)))
}

const ocrReply = `{"bankName": "Davivienda", "accountType": "SAVINGS", "finalBalance": 150000,
 "transactions": [{"date": "2024-02-01", "description": "Consignacion", "amount": 150000, "type": "INCOME"}]}`

func TestImport_ImageGoesThroughOCR(t *testing.T) {
	var got llm.Request
	oracle := func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return ocrReply, nil
	}
	o := newOrchestrator(t, WithOCR(extractor.NewOCRAdapter(oracle, nil)))

	res, err := o.Import(context.Background(), Upload{Filename: "foto.JPG", Data: []byte("jpeg-bytes")})
	require.NoError(t, err)
	assert.Equal(t, SourceOCR, res.Source)
	assert.Equal(t, extractor.OCRConfidence, res.Confidence)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "image/jpeg", got.Images[0].MediaType)
	assert.Equal(t, reconcile.StateNotRequired, res.Reconciliation.State())
}

func TestImport_PDFUsesTextLayerHint(t *testing.T) {
	var got llm.Request
	oracle := func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return ocrReply, nil
	}
	o := newOrchestrator(t, WithOCR(extractor.NewOCRAdapter(oracle, nil)))
	o.inspect = func([]byte) (extractor.PDFInfo, error) {
		return extractor.PDFInfo{Pages: 1, Text: []string{
			"Banco Davivienda extracto de cuenta de ahorros. Fecha 01/02/2024 Consignacion 150.000 Saldo 150.000",
		}}, nil
	}
	o.render = func(context.Context, []byte, extractor.RenderOptions) ([]llm.Image, error) {
		return []llm.Image{{MediaType: "image/png", Data: []byte("p1")}, {MediaType: "image/png", Data: []byte("p2")}}, nil
	}

	res, err := o.Import(context.Background(), Upload{Filename: "extracto.pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, "Davivienda", res.Account.BankName)
	assert.Len(t, got.Images, 2)
	assert.Contains(t, got.Prompt, "Consignacion 150.000")
}

func TestImport_PDFRenderFailure(t *testing.T) {
	o := newOrchestrator(t, WithOCR(extractor.NewOCRAdapter(func(context.Context, llm.Request) (string, error) {
		t.Fatal("oracle must not be called")
		return "", nil
	}, nil)))
	o.inspect = func([]byte) (extractor.PDFInfo, error) { return extractor.PDFInfo{Pages: 1}, nil }
	o.render = func(context.Context, []byte, extractor.RenderOptions) ([]llm.Image, error) {
		return nil, extractor.ErrRendererUnavailable
	}

	_, err := o.Import(context.Background(), Upload{Filename: "extracto.pdf", Data: []byte("%PDF-1.4")})
	assert.ErrorIs(t, err, extractor.ErrRendererUnavailable)
}

func TestImport_CategorizationFailureIsNotFatal(t *testing.T) {
	oracle := func(context.Context, llm.Request) (string, error) { return "", llm.ErrUnavailable }
	o := newOrchestrator(t, WithCategorizer(llm.NewCategorizer(oracle, 0, nil)))

	res, err := o.Import(context.Background(), Upload{
		Filename:   "enero.csv",
		Data:       []byte(statementCSV),
		Categories: []string{"Salario", "Mercado"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Categorizations)
	assert.Len(t, res.Transactions, 3)
}

func TestImport_Categorizes(t *testing.T) {
	oracle := func(context.Context, llm.Request) (string, error) {
		return `[{"index": 0, "category": "Salario", "confidence": 0.95}, {"index": 1, "category": "Mercado", "confidence": 0.8}]`, nil
	}
	o := newOrchestrator(t, WithCategorizer(llm.NewCategorizer(oracle, 0, nil)))

	res, err := o.Import(context.Background(), Upload{
		Filename:   "enero.csv",
		Data:       []byte(statementCSV),
		Categories: []string{"Salario", "Mercado"},
	})
	require.NoError(t, err)
	require.Len(t, res.Categorizations, 3)
	assert.Equal(t, "Salario", res.Categorizations[0].Category)
	assert.Equal(t, "Mercado", res.Categorizations[1].Category)
	assert.Empty(t, res.Categorizations[2].Category)
}
