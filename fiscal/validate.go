/*
validate.go - Pre-submission structural and business validation

PURPOSE:
  Pure validation over a document's current attributes plus static business
  rules. No side effects: safe to call repeatedly and from multiple
  transitions (the lifecycle re-validates defensively before signing).

RULES:
  - Required fields: counterpart name, tax id, currency, payload
  - Spanish fiscal id checksum (NIF/NIE/CIF)
  - IBAN format and mod-97 check (when present)
  - Totals reconciliation: net + tax == gross within the currency's
    rounding tolerance (half of one minor unit)
  - Direction and kind sanity

SEE ALSO:
  - lifecycle.go: Consumes ValidationResult for draft -> validated
*/
package fiscal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationResult is the outcome of a Validate call. Errors is empty when
// Valid is true.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validator checks documents against the static business rules.
type Validator struct{}

// Validate inspects the document and returns every rule violation found.
// Pure function: the document is not modified.
func (v Validator) Validate(doc *FiscalDocument) ValidationResult {
	var errs []string

	if doc.TenantID == "" {
		errs = append(errs, "tenant id is required")
	}
	if doc.CounterpartName == "" {
		errs = append(errs, "counterpart name is required")
	}

	if doc.CounterpartTaxID == "" {
		errs = append(errs, "counterpart tax id is required")
	} else if !ValidFiscalID(doc.CounterpartTaxID) {
		errs = append(errs, fmt.Sprintf("counterpart tax id %q fails checksum", doc.CounterpartTaxID))
	}

	if doc.CounterpartIBAN != "" && !ValidIBAN(doc.CounterpartIBAN) {
		errs = append(errs, fmt.Sprintf("counterpart IBAN %q is malformed", doc.CounterpartIBAN))
	}

	switch doc.Direction {
	case DirectionOutbound, DirectionInbound:
	default:
		errs = append(errs, fmt.Sprintf("direction %q is not valid", doc.Direction))
	}

	if len(doc.Currency) != 3 || doc.Currency != strings.ToUpper(doc.Currency) {
		errs = append(errs, fmt.Sprintf("currency %q must be a 3-letter ISO code", doc.Currency))
	} else {
		// Totals reconciliation only makes sense once the currency is known,
		// since the tolerance depends on its minor unit.
		if diff := doc.Net.Add(doc.Tax).Sub(doc.Gross).Abs(); diff.GreaterThan(roundingTolerance(doc.Currency)) {
			errs = append(errs, fmt.Sprintf("totals do not reconcile: net %s + tax %s != gross %s",
				doc.Net, doc.Tax, doc.Gross))
		}
	}

	if doc.Kind != KindRectification && doc.Gross.IsNegative() {
		errs = append(errs, "gross amount cannot be negative on a non-rectifying document")
	}

	if doc.Payload == "" {
		errs = append(errs, "payload is required")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// roundingTolerance is half of one minor unit for the currency: any
// reconciliation difference beyond it cannot be a rounding artifact.
func roundingTolerance(currency string) decimal.Decimal {
	decimals := int32(2)
	switch currency {
	case "JPY", "KRW", "CLP":
		decimals = 0
	case "BHD", "KWD", "TND":
		decimals = 3
	}
	// 0.5 * 10^-decimals
	return decimal.New(5, -decimals-1)
}

// =============================================================================
// FISCAL ID CHECKSUMS (Spanish NIF / NIE / CIF)
// =============================================================================

const nifLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// ValidFiscalID checks a Spanish fiscal identifier: DNI-style NIF, foreigner
// NIE, or organization CIF.
func ValidFiscalID(id string) bool {
	id = strings.ToUpper(strings.TrimSpace(id))
	if len(id) != 9 {
		return false
	}
	switch {
	case id[0] >= '0' && id[0] <= '9':
		return validDNI(id)
	case id[0] == 'X' || id[0] == 'Y' || id[0] == 'Z':
		return validNIE(id)
	default:
		return validCIF(id)
	}
}

func validDNI(id string) bool {
	n := 0
	for _, c := range id[:8] {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return id[8] == nifLetters[n%23]
}

func validNIE(id string) bool {
	// NIE prefixes map to a leading digit, then the DNI rule applies.
	prefix := map[byte]byte{'X': '0', 'Y': '1', 'Z': '2'}[id[0]]
	return validDNI(string(prefix) + id[1:])
}

func validCIF(id string) bool {
	kind := id[0]
	if !strings.ContainsRune("ABCDEFGHJKLMNPQRSUVW", rune(kind)) {
		return false
	}
	sum := 0
	for i := 1; i <= 7; i++ {
		c := id[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if i%2 == 1 { // odd positions double, then sum digits
			d *= 2
			d = d/10 + d%10
		}
		sum += d
	}
	control := (10 - sum%10) % 10
	// Some organization kinds close with a letter, some with a digit;
	// the rest accept either form.
	controlDigit := byte('0' + control)
	controlLetter := "JABCDEFGHI"[control]
	last := id[8]
	switch {
	case strings.ContainsRune("NPQRSW", rune(kind)):
		return last == controlLetter
	case strings.ContainsRune("ABEH", rune(kind)):
		return last == controlDigit
	default:
		return last == controlDigit || last == controlLetter
	}
}

// =============================================================================
// IBAN
// =============================================================================

// ValidIBAN performs the ISO 13616 structural check: country prefix, length
// bounds and the mod-97 checksum.
func ValidIBAN(iban string) bool {
	iban = strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	if iban[0] < 'A' || iban[0] > 'Z' || iban[1] < 'A' || iban[1] > 'Z' {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	// Incremental mod-97 avoids big-integer arithmetic.
	rem := 0
	for _, c := range rearranged {
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			n := int(c-'A') + 10
			rem = (rem*100 + n) % 97
		default:
			return false
		}
	}
	return rem == 1
}
