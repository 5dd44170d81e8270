package purchase

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// LuhnChecksum computes the standard mod-10 check digit for a number
// carrying its check digit last (org numbers, OCR references). A correct
// number yields 0.
func LuhnChecksum(digits string) int {
	weight := 1
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i]-'0') * weight
		sum += d/10 + d%10
		if weight == 1 {
			weight = 2
		} else {
			weight = 1
		}
	}
	return (10 - sum%10) % 10
}

// AddControlDigits appends a length digit and a Luhn check digit to a
// number, producing an OCR reference in the standard long format
func AddControlDigits(number string) string {
	s := number + strconv.Itoa((len(number)+2)%10)
	return s + strconv.Itoa(LuhnChecksum(s+"0"))
}

// AddLuhnChecksum appends only the Luhn check digit
func AddLuhnChecksum(number string) string {
	return number + strconv.Itoa(LuhnChecksum(number+"0"))
}

// ValidOCR reports whether a reference carries a correct check digit
func ValidOCR(ocr string) bool {
	if len(ocr) < 3 {
		return false
	}
	for _, c := range ocr {
		if c < '0' || c > '9' {
			return false
		}
	}
	return LuhnChecksum(ocr) == 0
}

// OCRSequence allocates per-organization reference counters. The counter
// resets whenever the year's final digit changes, so references never
// collide within a ten-year window.
type OCRSequence interface {
	Next(ctx context.Context, orgID uuid.UUID, yearDigit int) (int64, error)
}

// GenerateOCR builds the reference number for a purchase from the
// organization's counter and the year's final digit. The counter is
// offset by 9 so every reference has at least two digits before the
// control digits.
func GenerateOCR(counter int64, yearDigit int) string {
	number := strconv.FormatInt(counter+9, 10) + strconv.Itoa(yearDigit)
	return AddControlDigits(number)
}
