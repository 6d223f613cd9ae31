package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication      = errors.New("invalid signature")
	ErrValidation          = errors.New("invalid payment document")
	ErrConfiguration       = errors.New("payout configuration missing")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrProviderDispatch    = errors.New("payout provider rejected dispatch")
	ErrLedgerWrite         = errors.New("ledger write failed")
	ErrDispatchInFlight    = errors.New("payout dispatch already in flight")
)

// ValidationError pins a validation failure to the offending element.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConfigurationError names the missing setting.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not set", e.Setting)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
