package parser

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tech1ee/finuts/internal/model"
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
<LANGUAGE>ENG
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
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>2500.00
<FITID>2024012501
<NAME>PAYROLL DEPOSIT
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func ofxDoc() model.DocumentType {
	return model.DocumentType{Kind: model.DocOFX, Version: "102", Encoding: "utf-8"}
}

func TestOFXParserStrict(t *testing.T) {
	p := &OFXParser{}
	result := p.Parse(context.Background(), []byte(sampleBankOFX), ofxDoc())

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, result.Transactions, 3)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)

	first := result.Transactions[0]
	assert.Equal(t, "2024011501", first.ID)
	assert.Equal(t, int64(-2550), first.Amount)
	assert.Equal(t, "STARBUCKS STORE #1234", first.Description)
	assert.Equal(t, "1234567890", first.AccountID)
	assert.Equal(t, 2024, first.Date.Year())
	assert.Equal(t, time.January, first.Date.Month())
	assert.Equal(t, 15, first.Date.Day())

	assert.Equal(t, int64(250000), result.Transactions[2].Amount)
}

// lenientOFX builds a structurally broken document (no signon message)
// that still carries transaction blocks.
func lenientOFX(blocks []string) string {
	var b strings.Builder
	b.WriteString("OFXHEADER:100\nDATA:OFXSGML\nVERSION:102\n\n<OFX>\n<BANKTRANLIST>\n")
	for _, block := range blocks {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString("</BANKTRANLIST>\n</OFX>\n")
	return b.String()
}

func stmtBlock(day int, amount, name string) string {
	return fmt.Sprintf("<STMTTRN>\n<TRNTYPE>DEBIT\n<DTPOSTED>202401%02d\n<TRNAMT>%s\n<FITID>fit-%02d\n<NAME>%s\n</STMTTRN>", day, amount, day, name)
}

func TestOFXParserLenientFallbackSkipsMalformedBlock(t *testing.T) {
	blocks := make([]string, 0, 10)
	for day := 1; day <= 9; day++ {
		blocks = append(blocks, stmtBlock(day, "-10.00", fmt.Sprintf("SHOP %d", day)))
	}
	// Tenth block is missing its amount tag entirely.
	blocks = append(blocks, "<STMTTRN>\n<TRNTYPE>DEBIT\n<DTPOSTED>20240110\n<FITID>fit-10\n<NAME>BROKEN SHOP\n</STMTTRN>")

	p := &OFXParser{}
	result := p.Parse(context.Background(), []byte(lenientOFX(blocks)), ofxDoc())

	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Len(t, result.Transactions, 9)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)

	first := result.Transactions[0]
	assert.Equal(t, "fit-01", first.ID)
	assert.Equal(t, int64(-1000), first.Amount)
	assert.Equal(t, "SHOP 1", first.Description)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), first.Date)
}

func TestOFXParserLenientTimestampTruncation(t *testing.T) {
	block := "<STMTTRN>\n<TRNTYPE>DEBIT\n<DTPOSTED>20240115120000[0:GMT]\n<TRNAMT>-42.00\n<NAME>CORNER SHOP\n</STMTTRN>"

	p := &OFXParser{}
	result := p.Parse(context.Background(), []byte(lenientOFX([]string{block})), ofxDoc())

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), result.Transactions[0].Date)
	// No FITID tag: a fresh ID is generated.
	assert.NotEmpty(t, result.Transactions[0].ID)
}

func TestOFXParserNoBlocks(t *testing.T) {
	p := &OFXParser{}
	result := p.Parse(context.Background(), []byte("OFXHEADER:100\n<OFX></OFX>"), ofxDoc())

	assert.Equal(t, OutcomeEmpty, result.Outcome)
}

func TestCleanMerchant(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"pos prefix", "POS PURCHASE MAGNUM ALMATY", "MAGNUM ALMATY"},
		{"date stamp", "01/15 STARBUCKS #42", "STARBUCKS #42"},
		{"plain", "Whole Foods Market", "Whole Foods Market"},
		{"ach prefix", "ACH DEBIT NETFLIX.COM", "NETFLIX.COM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMerchant(tt.input))
		})
	}
}

func TestIsGenericDescription(t *testing.T) {
	assert.True(t, isGenericDescription("DEBIT"))
	assert.True(t, isGenericDescription("purchase"))
	assert.False(t, isGenericDescription("MAGNUM ALMATY"))
}
