package app

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/transfa/payout-gateway/internal/domain"
	"golang.org/x/crypto/blake2b"
)

const instructionsPath = "Document.CstmrCdtTrfInitn.PmtInf"

// ExtractInstructions decodes a payment document and returns its instructions in
// document order. Any malformed element fails the whole document.
func ExtractInstructions(body []byte) ([]domain.CreditTransferInstruction, error) {
	var doc domain.PaymentDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("malformed payment document: %v", err)}
	}
	if doc.Document == nil {
		return nil, missing("Document")
	}
	if doc.Document.CstmrCdtTrfInitn == nil {
		return nil, missing("Document.CstmrCdtTrfInitn")
	}
	blocks := doc.Document.CstmrCdtTrfInitn.PmtInf
	if len(blocks) == 0 {
		return nil, missing(instructionsPath)
	}

	digest := blake2b.Sum256(body)
	sourceDigest := hex.EncodeToString(digest[:])

	var instructions []domain.CreditTransferInstruction
	for b, block := range blocks {
		blockPath := instructionsPath
		if len(blocks) > 1 {
			blockPath = fmt.Sprintf("%s[%d]", instructionsPath, b)
		}
		if block.CdtTrfTxInf == nil {
			return nil, missing(blockPath + ".CdtTrfTxInf")
		}
		for i, raw := range *block.CdtTrfTxInf {
			path := fmt.Sprintf("%s.CdtTrfTxInf[%d]", blockPath, i)
			instr, err := extractInstruction(path, raw)
			if err != nil {
				return nil, err
			}
			instr.Position = len(instructions)
			instr.SourceDigest = sourceDigest
			instructions = append(instructions, instr)
		}
	}

	if len(instructions) == 0 {
		return nil, &domain.ValidationError{Path: instructionsPath, Reason: "no credit transfer instructions"}
	}
	return instructions, nil
}

func extractInstruction(path string, raw json.RawMessage) (domain.CreditTransferInstruction, error) {
	var tx domain.RawCreditTransfer
	if err := json.Unmarshal(raw, &tx); err != nil {
		return domain.CreditTransferInstruction{}, &domain.ValidationError{Path: path, Reason: err.Error()}
	}

	if tx.Amt == nil {
		return domain.CreditTransferInstruction{}, missing(path + ".Amt")
	}
	if tx.Amt.InstdAmt == nil {
		return domain.CreditTransferInstruction{}, missing(path + ".Amt.InstdAmt")
	}
	amount, err := parseAmount(path+".Amt.InstdAmt.value", tx.Amt.InstdAmt.Value)
	if err != nil {
		return domain.CreditTransferInstruction{}, err
	}
	currency, err := parseCurrency(path+".Amt.InstdAmt.Ccy", tx.Amt.InstdAmt.Ccy)
	if err != nil {
		return domain.CreditTransferInstruction{}, err
	}

	if tx.Cdtr == nil {
		return domain.CreditTransferInstruction{}, missing(path + ".Cdtr")
	}
	recipient, err := requireText(path+".Cdtr.Nm", tx.Cdtr.Nm)
	if err != nil {
		return domain.CreditTransferInstruction{}, err
	}

	if tx.RmtInf == nil {
		return domain.CreditTransferInstruction{}, missing(path + ".RmtInf")
	}
	var ustrd *string
	if tx.RmtInf.Ustrd != nil {
		text := string(*tx.RmtInf.Ustrd)
		ustrd = &text
	}
	reference, err := requireText(path+".RmtInf.Ustrd", ustrd)
	if err != nil {
		return domain.CreditTransferInstruction{}, err
	}

	return domain.CreditTransferInstruction{
		Amount:    amount,
		Currency:  currency,
		Reference: reference,
		Recipient: recipient,
	}, nil
}

func parseAmount(path string, raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Decimal{}, missing(path)
	}

	var text string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return decimal.Decimal{}, &domain.ValidationError{Path: path, Reason: err.Error()}
		}
	} else {
		var number json.Number
		if err := json.Unmarshal(trimmed, &number); err != nil {
			return decimal.Decimal{}, &domain.ValidationError{Path: path, Reason: "amount must be a number or numeric string"}
		}
		text = number.String()
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Decimal{}, &domain.ValidationError{Path: path, Reason: fmt.Sprintf("invalid amount %q", text)}
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, &domain.ValidationError{Path: path, Reason: "amount must be greater than zero"}
	}
	if domain.QuantizeAmount(amount).IsZero() {
		return decimal.Decimal{}, &domain.ValidationError{Path: path, Reason: "amount rounds to zero"}
	}
	if !domain.FitsMinorUnits(amount) {
		return decimal.Decimal{}, &domain.ValidationError{Path: path, Reason: fmt.Sprintf("amount %s exceeds the payable range", text)}
	}
	return amount, nil
}

func parseCurrency(path string, raw *string) (string, error) {
	code, err := requireText(path, raw)
	if err != nil {
		return "", err
	}
	code = strings.ToUpper(code)
	if len(code) != 3 {
		return "", &domain.ValidationError{Path: path, Reason: fmt.Sprintf("currency %q is not a 3-letter code", code)}
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", &domain.ValidationError{Path: path, Reason: fmt.Sprintf("currency %q is not a 3-letter code", code)}
		}
	}
	return code, nil
}

func requireText(path string, raw *string) (string, error) {
	if raw == nil {
		return "", missing(path)
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return "", &domain.ValidationError{Path: path, Reason: "must not be empty"}
	}
	return value, nil
}

func missing(path string) error {
	return &domain.ValidationError{Path: path, Reason: "required field is missing"}
}
