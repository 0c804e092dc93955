package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/xmlpath.v2"

	"github.com/tech1ee/finuts/internal/locale"
	"github.com/tech1ee/finuts/internal/model"
)

// CAMTParser parses ISO 20022 CAMT.053 bank statements. Entries are
// extracted independently; an entry missing its amount or booking date is
// skipped silently.
type CAMTParser struct{}

const camtConfidence = 0.95

var (
	camtEntryPath       = xmlpath.MustCompile("//BkToCstmrStmt/Stmt/Ntry")
	camtAccountPath     = xmlpath.MustCompile("//BkToCstmrStmt/Stmt/Acct/Id/IBAN")
	camtAccountOtherRef = xmlpath.MustCompile("//BkToCstmrStmt/Stmt/Acct/Id/Othr/Id")

	camtAmountPath      = xmlpath.MustCompile("Amt")
	camtDirectionPath   = xmlpath.MustCompile("CdtDbtInd")
	camtBookingDatePath = xmlpath.MustCompile("BookgDt/Dt")
	camtValueDatePath   = xmlpath.MustCompile("ValDt/Dt")
	camtRefPath         = xmlpath.MustCompile("AcctSvcrRef")
	camtInfoPath        = xmlpath.MustCompile("NtryDtls/TxDtls/RmtInf/Ustrd")
	camtCreditorPath    = xmlpath.MustCompile("NtryDtls/TxDtls/RltdPties/Cdtr/Nm")
	camtDebtorPath      = xmlpath.MustCompile("NtryDtls/TxDtls/RltdPties/Dbtr/Nm")
)

// Parse implements the Parser contract for CAMT.053 documents.
func (p *CAMTParser) Parse(ctx context.Context, data []byte, doc model.DocumentType) Result {
	text, err := decodeText(data, doc.Encoding)
	if err != nil {
		return errorResult(err.Error(), nil)
	}

	root, err := xmlpath.Parse(bytes.NewReader(text))
	if err != nil {
		return errorResult(fmt.Sprintf("invalid XML: %v", err), nil)
	}

	accountID, _ := camtAccountPath.String(root)
	if accountID == "" {
		accountID, _ = camtAccountOtherRef.String(root)
	}

	var transactions []model.ImportedTransaction

	iter := camtEntryPath.Iter(root)
	for iter.Next() {
		if ctx.Err() != nil {
			return errorResult(ctx.Err().Error(), transactions)
		}
		if txn, ok := p.parseEntry(iter.Node(), accountID); ok {
			transactions = append(transactions, txn)
		}
	}

	if len(transactions) == 0 {
		return emptyResult("no statement entries found")
	}
	return successResult(transactions, camtConfidence, nil)
}

func (p *CAMTParser) parseEntry(entry *xmlpath.Node, accountID string) (model.ImportedTransaction, bool) {
	rawAmount, hasAmount := camtAmountPath.String(entry)
	rawDate, hasDate := camtBookingDatePath.String(entry)
	if !hasDate {
		rawDate, hasDate = camtValueDatePath.String(entry)
	}
	if !hasAmount || !hasDate {
		return model.ImportedTransaction{}, false
	}

	date, err := locale.ParseDate(strings.TrimSpace(rawDate), locale.DateISO)
	if err != nil {
		return model.ImportedTransaction{}, false
	}

	// CAMT amounts are unsigned dot-decimal; the direction indicator
	// carries the sign.
	amount, err := locale.ParseAmount(strings.TrimSpace(rawAmount), locale.NumberUS)
	if err != nil {
		return model.ImportedTransaction{}, false
	}
	if direction, ok := camtDirectionPath.String(entry); ok && strings.TrimSpace(direction) == "DBIT" {
		amount = -amount
	}

	description, _ := camtInfoPath.String(entry)
	description = strings.TrimSpace(description)

	merchant, _ := camtCreditorPath.String(entry)
	if merchant == "" || amount > 0 {
		if debtor, ok := camtDebtorPath.String(entry); ok && amount > 0 {
			merchant = debtor
		}
	}
	merchant = strings.TrimSpace(merchant)

	if description == "" {
		description = merchant
	}

	id, _ := camtRefPath.String(entry)
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	txn := model.ImportedTransaction{
		ID:          id,
		Date:        date,
		Amount:      amount,
		Description: description,
		Merchant:    merchant,
		AccountID:   accountID,
		ParseSource: model.ParseSourceRule,
		RawFields: []model.RawField{
			{Key: "Amt", Value: strings.TrimSpace(rawAmount)},
			{Key: "BookgDt", Value: strings.TrimSpace(rawDate)},
		},
	}
	txn.Hash = txn.GenerateHash()
	return txn, true
}
