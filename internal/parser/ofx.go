package parser

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/google/uuid"

	"github.com/tech1ee/finuts/internal/locale"
	"github.com/tech1ee/finuts/internal/model"
)

// OFXParser parses OFX/QFX interchange files. Well-formed documents go
// through the strict ofxgo parser; documents it rejects fall back to a
// lenient block scanner that extracts transaction blocks individually so
// one malformed block never loses the batch.
type OFXParser struct{}

// Parse confidence reflects the format's inherent structure: fixed values,
// slightly lower on the lenient path.
const (
	ofxStrictConfidence  = 0.95
	ofxLenientConfidence = 0.92
)

var (
	severityRe   = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagFixRe = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	stmtBlockRe  = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	// Matches both SGML-style tags (value runs to end of line) and
	// XML-style self-closed pairs.
	blockTagRe = regexp.MustCompile(`(?i)<([A-Z0-9._]+)>\s*([^<\r\n]+)`)
)

// Parse implements the Parser contract for OFX documents.
func (p *OFXParser) Parse(ctx context.Context, data []byte, doc model.DocumentType) Result {
	text, err := decodeText(data, doc.Encoding)
	if err != nil {
		return errorResult(err.Error(), nil)
	}

	content := p.preprocess(string(text))

	if txns, strictErr := p.parseStrict(content); strictErr == nil {
		return successResult(txns, ofxStrictConfidence, nil)
	} else {
		slog.Debug("strict OFX parse failed, falling back to block scan", "error", strictErr)
	}

	if ctx.Err() != nil {
		return errorResult(ctx.Err().Error(), nil)
	}

	txns := p.scanBlocks(content)
	if len(txns) == 0 {
		return emptyResult("no transaction blocks found")
	}
	return successResult(txns, ofxLenientConfidence, nil)
}

// preprocess fixes common formatting issues in OFX files: leading blank
// lines, mixed-case severity values, and SGML tags missing their closing
// angle bracket.
func (p *OFXParser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRe.ReplaceAllStringFunc(content, strings.ToUpper)
	content = openTagFixRe.ReplaceAllString(content, "$1>")
	return content
}

func (p *OFXParser) parseStrict(content string) ([]model.ImportedTransaction, error) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	var transactions []model.ImportedTransaction

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			accountID := string(stmt.BankAcctFrom.AcctID)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				if txn, convErr := p.convert(ofxTx, accountID); convErr == nil {
					transactions = append(transactions, txn)
				}
			}
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			accountID := string(stmt.CCAcctFrom.AcctID)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				if txn, convErr := p.convert(ofxTx, accountID); convErr == nil {
					transactions = append(transactions, txn)
				}
			}
		}
	}

	if len(transactions) == 0 {
		return nil, fmt.Errorf("no transactions in OFX response")
	}
	return transactions, nil
}

func (p *OFXParser) convert(ofxTx ofxgo.Transaction, accountID string) (model.ImportedTransaction, error) {
	minor, err := ratToMinorUnits(&ofxTx.TrnAmt.Rat)
	if err != nil {
		return model.ImportedTransaction{}, err
	}

	id := string(ofxTx.FiTID)
	if id == "" {
		id = uuid.NewString()
	}

	txn := model.ImportedTransaction{
		ID:          id,
		Date:        ofxTx.DtPosted.Time,
		Amount:      minor,
		Description: string(ofxTx.Name),
		Merchant:    extractMerchantName(ofxTx),
		AccountID:   accountID,
		ParseSource: model.ParseSourceRule,
		RawFields: []model.RawField{
			{Key: "TRNTYPE", Value: fmt.Sprintf("%v", ofxTx.TrnType)},
			{Key: "NAME", Value: string(ofxTx.Name)},
			{Key: "MEMO", Value: string(ofxTx.Memo)},
		},
	}
	txn.Hash = txn.GenerateHash()
	return txn, nil
}

// scanBlocks extracts transaction blocks one by one. Blocks missing a date
// or amount tag are skipped silently per the format contract.
func (p *OFXParser) scanBlocks(content string) []model.ImportedTransaction {
	var transactions []model.ImportedTransaction

	for _, block := range stmtBlockRe.FindAllStringSubmatch(content, -1) {
		tags := make(map[string]string)
		for _, m := range blockTagRe.FindAllStringSubmatch(block[1], -1) {
			key := strings.ToUpper(m[1])
			if _, seen := tags[key]; !seen {
				tags[key] = strings.TrimSpace(m[2])
			}
		}

		posted, hasDate := tags["DTPOSTED"]
		rawAmount, hasAmount := tags["TRNAMT"]
		if !hasDate || !hasAmount {
			continue
		}
		if len(posted) > 8 {
			posted = posted[:8]
		}

		date, err := locale.ParseDate(posted, locale.DateISO)
		if err != nil {
			continue
		}
		amount, err := locale.ParseAmount(rawAmount, locale.NumberUS)
		if err != nil {
			continue
		}

		description := tags["NAME"]
		if description == "" {
			description = tags["MEMO"]
		}

		id := tags["FITID"]
		if id == "" {
			id = uuid.NewString()
		}

		txn := model.ImportedTransaction{
			ID:          id,
			Date:        date,
			Amount:      amount,
			Description: description,
			Merchant:    cleanMerchant(description),
			ParseSource: model.ParseSourceRule,
			RawFields: []model.RawField{
				{Key: "TRNTYPE", Value: tags["TRNTYPE"]},
				{Key: "NAME", Value: tags["NAME"]},
				{Key: "MEMO", Value: tags["MEMO"]},
			},
		}
		txn.Hash = txn.GenerateHash()
		transactions = append(transactions, txn)
	}

	return transactions
}

// ratToMinorUnits converts an exact rational amount to integer minor
// units, rejecting values finer than two decimal places.
func ratToMinorUnits(r *big.Rat) (int64, error) {
	scaled := new(big.Rat).Mul(r, big.NewRat(100, 1))
	if !scaled.IsInt() {
		return 0, fmt.Errorf("amount %s is not a whole number of minor units", r.FloatString(4))
	}
	return scaled.Num().Int64(), nil
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	return cleanMerchant(name)
}

// cleanMerchant strips common processor prefixes and leading MM/DD stamps.
func cleanMerchant(name string) string {
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"POS TRANSACTION",
		"CARD PURCHASE",
	}
	upper := strings.ToUpper(name)
	for _, g := range generic {
		if upper == g {
			return true
		}
	}
	return false
}
