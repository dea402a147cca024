// Package ofx reads OFX/QFX bank and credit-card statements into import rows.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/coffer/internal/model"
)

// DateLayout is the textual date format emitted into rows.
const DateLayout = "2/1/2006"

// DefaultCategory is used when neither the caller nor the transaction type
// suggests a category.
const DefaultCategory = "Uncategorized"

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Defaults fills the fields a statement does not carry.
type Defaults struct {
	// Bank names the institution. Empty means "OFX <account id>".
	Bank string
	// Category applies to every row the type mapping leaves alone.
	Category string
}

// Parser converts OFX/QFX files to raw import rows.
type Parser struct {
	defaults Defaults
}

// NewParser creates a new OFX parser.
func NewParser(defaults Defaults) *Parser {
	if defaults.Category == "" {
		defaults.Category = DefaultCategory
	}
	return &Parser{defaults: defaults}
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case.
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Some SGML exports drop the closing bracket of a bare opening tag.
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file and returns one row per statement
// transaction, in statement order. Transactions repeating a FITID already
// seen in the file are dropped. Lines are numbered from 1.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := parse(reader)
	if err != nil {
		return nil, err
	}

	var rows []model.RawRow
	var bankStmts, ccStmts int
	seen := make(map[string]struct{})

	appendList := func(list *ofxgo.TransactionList, accountID string) {
		if list == nil {
			return
		}
		for _, tx := range list.Transactions {
			fitID := string(tx.FiTID)
			if fitID != "" {
				if _, dup := seen[fitID]; dup {
					slog.Debug("skipping repeated OFX transaction", "fitid", fitID)
					continue
				}
				seen[fitID] = struct{}{}
			}
			row := p.convertTransaction(tx, accountID)
			row.Line = len(rows) + 1
			rows = append(rows, row)
		}
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			appendList(stmt.BankTranList, string(stmt.BankAcctFrom.AcctID))
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			appendList(stmt.BankTranList, string(stmt.CCAcctFrom.AcctID))
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(rows),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return rows, nil
}

// convertTransaction maps one statement transaction onto the six import fields.
func (p *Parser) convertTransaction(tx ofxgo.Transaction, accountID string) model.RawRow {
	trnType := tx.TrnType.String()

	category := p.defaults.Category
	switch trnType {
	case "INT", "DIV":
		category = "Interest"
	case "FEE", "SRVCHG":
		category = "Bank Fees"
	case "ATM":
		category = "Cash & ATM"
	}

	bank := p.defaults.Bank
	if bank == "" {
		bank = "OFX " + accountID
	}

	return model.RawRow{
		Date:     tx.DtPosted.Time.UTC().Format(DateLayout),
		Name:     extractMerchantName(tx),
		Category: category,
		Amount:   tx.TrnAmt.FloatString(2),
		Types:    typeTag(trnType),
		Bank:     bank,
	}
}

// typeTag turns an OFX TRNTYPE such as "DEBIT" into a tag such as "Debit".
func typeTag(trnType string) string {
	if trnType == "" {
		return "Other"
	}
	return strings.ToUpper(trnType[:1]) + strings.ToLower(trnType[1:])
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

	// Drop a leading "MM/DD " stamp.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// GetAccounts returns the sorted, unique account IDs in the file.
func GetAccounts(reader io.Reader) ([]string, error) {
	resp, err := parse(reader)
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]struct{})
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankAcctFrom.AcctID != "" {
			accounts[string(stmt.BankAcctFrom.AcctID)] = struct{}{}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.CCAcctFrom.AcctID != "" {
			accounts[string(stmt.CCAcctFrom.AcctID)] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(accounts)), nil
}
