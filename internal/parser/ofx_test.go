package parser

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-import/internal/models"
)

const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>SPA
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>COP
<BANKACCTFROM>
<BANKID>007
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240101120000[0:GMT]
<TRNAMT>2000000.00
<FITID>2024010101
<NAME>ABONO NOMINA
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[0:GMT]
<TRNAMT>-45000.00
<FITID>2024010501
<NAME>COMPRA EXITO
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1955000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestOFXParser_BankStatement(t *testing.T) {
	p := NewOFXParser()
	require.True(t, p.Detect(sampleBankOFX))

	result, err := p.Parse(sampleBankOFX)
	require.NoError(t, err)

	assert.Equal(t, models.AccountChecking, result.Account.AccountType)
	require.NotNil(t, result.Account.ReportedBalance)
	assert.True(t, result.Account.ReportedBalance.Equal(decimal.NewFromInt(1955000)))
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)

	require.Len(t, result.Transactions, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), result.Transactions[0].Date)
	assert.Equal(t, models.TypeIncome, result.Transactions[0].Type)
	assert.True(t, result.Transactions[1].Amount.Equal(decimal.NewFromInt(-45000)))
	assert.Equal(t, "COMPRA EXITO", result.Transactions[1].Description)
}

func TestOFXParser_Malformed(t *testing.T) {
	_, err := NewOFXParser().Parse("OFXHEADER:100\n<OFX><garbage")
	assert.Error(t, err)
}

func TestOFXParser_DetectRejectsCSV(t *testing.T) {
	assert.False(t, NewOFXParser().Detect(bancolombiaCSV))
}
