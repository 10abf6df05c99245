package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-import/internal/models"
)

var (
	ofxSeverity = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	ofxOpenTag  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXParser handles OFX/QFX downloads, bank and credit card statements alike.
type OFXParser struct{}

// NewOFXParser creates a new OFX parser.
func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

func (p *OFXParser) BankName() string {
	return "OFX"
}

func (p *OFXParser) Detect(raw string) bool {
	top := head(strings.TrimLeft(raw, " \t\r\n\ufeff"), 1024)
	return strings.HasPrefix(top, "OFXHEADER") || containsFold(top, "<OFX>") || strings.Contains(top, "<?OFX")
}

// preprocess fixes formatting issues that trip the SGML reader.
func (p *OFXParser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n\ufeff")
	content = ofxSeverity.ReplaceAllStringFunc(content, strings.ToUpper)
	return ofxOpenTag.ReplaceAllString(content, "$1>")
}

func (p *OFXParser) Parse(raw string) (*models.ParseResult, error) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocess(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	result := &models.ParseResult{Confidence: 0.95}
	result.Account.BankName = strings.TrimSpace(string(resp.Signon.Org))
	if result.Account.BankName == "" {
		result.Account.BankName = "OFX"
	}
	result.Account.AccountType = models.AccountSavings

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		if stmt.BankAcctFrom.AcctType == ofxgo.AcctTypeChecking {
			result.Account.AccountType = models.AccountChecking
		}
		p.setBalance(&result.Account, &stmt.BalAmt)
		if stmt.BankTranList != nil {
			p.collect(result, stmt.BankTranList.Transactions)
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		result.Account.AccountType = models.AccountCreditCard
		p.setBalance(&result.Account, &stmt.BalAmt)
		if stmt.BankTranList != nil {
			p.collect(result, stmt.BankTranList.Transactions)
		}
	}

	if len(result.Transactions) == 0 {
		return nil, ErrNoTransactions
	}
	result.Account.SuggestedName = fmt.Sprintf("%s %s", result.Account.BankName, result.Account.AccountType.Label())

	parsed := float64(len(result.Transactions))
	result.Confidence *= parsed / (parsed + float64(result.SkippedRows))

	slog.Debug("parsed OFX statement",
		"bank", result.Account.BankName,
		"transactions", len(result.Transactions),
		"skipped", result.SkippedRows)
	return result, nil
}

func (p *OFXParser) setBalance(acct *models.DetectedAccount, amt *ofxgo.Amount) {
	bal, err := decimal.NewFromString(amt.FloatString(2))
	if err != nil {
		return
	}
	acct.ReportedBalance = &bal
}

func (p *OFXParser) collect(result *models.ParseResult, txns []ofxgo.Transaction) {
	for _, tx := range txns {
		amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(2))
		if err != nil {
			result.SkippedRows++
			continue
		}
		raw := p.description(tx)
		parsed, err := models.NewParsedTransaction(tx.DtPosted.Time, amount, normalizeDescription(raw), raw)
		if err != nil {
			result.SkippedRows++
			continue
		}
		result.Transactions = append(result.Transactions, parsed)
	}
}

// description prefers the payee name, then NAME, then MEMO.
func (p *OFXParser) description(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}
	if tx.Name != "" {
		return string(tx.Name)
	}
	return string(tx.Memo)
}
