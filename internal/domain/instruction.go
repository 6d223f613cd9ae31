/**
 * @description
 * This file models the inbound ISO 20022 customer credit-transfer initiation payload
 * (pain.001-style JSON) and the typed instruction the rest of the service works with.
 *
 * @notes
 * - The wire structs use pointers so that an absent key can be told apart from an
 *   empty value. Nothing outside the extractor should touch them.
 * - `PmtInf` may arrive as a single object or as an array of payment-information blocks.
 */
package domain

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// CreditTransferInstruction is one fully validated payment instruction.
// Position and SourceDigest locate it within the signed document it came from.
type CreditTransferInstruction struct {
	Position     int             `json:"-"`
	SourceDigest string          `json:"-"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Reference    string          `json:"reference"`
	Recipient    string          `json:"recipient"`
}

// PaymentDocument is the top-level webhook body.
type PaymentDocument struct {
	Document *DocumentBody `json:"Document"`
}

// DocumentBody wraps the initiation message.
type DocumentBody struct {
	CstmrCdtTrfInitn *CustomerCreditTransferInitiation `json:"CstmrCdtTrfInitn"`
}

// CustomerCreditTransferInitiation carries one or more payment-information blocks.
type CustomerCreditTransferInitiation struct {
	PmtInf PaymentInformationList `json:"PmtInf"`
}

// PaymentInformation holds the raw transaction entries. Entries stay raw so the
// extractor can report the failing index.
type PaymentInformation struct {
	CdtTrfTxInf *[]json.RawMessage `json:"CdtTrfTxInf"`
}

// PaymentInformationList accepts either an object or an array of objects.
type PaymentInformationList []PaymentInformation

func (l *PaymentInformationList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []PaymentInformation
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one PaymentInformation
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*l = PaymentInformationList{one}
	return nil
}

// RawCreditTransfer is a single CdtTrfTxInf entry as it appears on the wire.
type RawCreditTransfer struct {
	Amt    *RawAmount     `json:"Amt"`
	Cdtr   *RawParty      `json:"Cdtr"`
	RmtInf *RawRemittance `json:"RmtInf"`
}

type RawAmount struct {
	InstdAmt *InstructedAmount `json:"InstdAmt"`
}

// InstructedAmount keeps the value raw: senders use both JSON strings and numbers.
type InstructedAmount struct {
	Ccy   *string         `json:"Ccy"`
	Value json.RawMessage `json:"value"`
}

type RawParty struct {
	Nm *string `json:"Nm"`
}

type RawRemittance struct {
	Ustrd *RemittanceText `json:"Ustrd"`
}

// RemittanceText is the unstructured remittance line. ISO allows it to repeat, so an
// array of strings is joined with a single space.
type RemittanceText string

func (t *RemittanceText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var lines []string
		if err := json.Unmarshal(trimmed, &lines); err != nil {
			return err
		}
		*t = RemittanceText(strings.Join(lines, " "))
		return nil
	}
	var line string
	if err := json.Unmarshal(trimmed, &line); err != nil {
		return err
	}
	*t = RemittanceText(line)
	return nil
}
