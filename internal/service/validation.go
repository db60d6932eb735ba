package service

import (
	"strings"
	"time"
	"unicode"

	"github.com/gvafram3/parcel-console/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	maxSearchLen    = 100
)

// normalizePaging fills in the default size; negative pages are left for
// validation to reject.
func normalizePaging(page, size int) (int, int) {
	if size == 0 {
		size = DefaultPageSize
	}
	return page, size
}

func validatePaging(page, size int) []FieldError {
	var ferrs []FieldError
	if page < 0 {
		ferrs = append(ferrs, FieldError{Field: "page", Message: "must be >= 0"})
	}
	if size < 1 || size > MaxPageSize {
		ferrs = append(ferrs, FieldError{Field: "size", Message: "must be between 1 and 100"})
	}
	return ferrs
}

func validateSearch(s string) []FieldError {
	if len([]rune(s)) > maxSearchLen {
		return []FieldError{{Field: "search", Message: "length must be <= 100"}}
	}
	return nil
}

func isValidParcelStatus(s model.ParcelStatus) bool {
	switch s {
	case model.StatusRegistered, model.StatusAssigned, model.StatusInTransit, model.StatusDelivered, model.StatusReturned:
		return true
	default:
		return false
	}
}

// day truncates t to its calendar day in t's location.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// inDayRange reports whether t falls within the calendar days [from, to].
// A zero bound is open.
func inDayRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(day(from)) {
		return false
	}
	if !to.IsZero() && !t.Before(day(to).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// foldContains is a case-insensitive substring match.
func foldContains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

// digits keeps only the digits of a phone number so "024 555 0101" matches "0245550101".
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// phoneMatches compares digits only, and only for needles that look like a
// phone number, so "TRK-000123" never matches a phone.
func phoneMatches(phone, needle string) bool {
	if strings.ContainsFunc(needle, func(r rune) bool {
		return !unicode.IsDigit(r) && !strings.ContainsRune(" +-()", r)
	}) {
		return false
	}
	n := digits(needle)
	return n != "" && strings.Contains(digits(phone), n)
}
