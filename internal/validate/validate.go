// Package validate performs structural validation of candidate account
// records. Checks are pure and fail-fast: the first violated rule is reported
// and nothing is aggregated. Uniqueness of username and email is the
// reconciliation engine's and the store's concern, not this package's.
package validate

import (
	"regexp"
	"strings"

	"github.com/smallbiznis/smallbiznis-users/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Account checks a candidate record. plainPassword is the pre-hash secret and
// is only required on creation; on update the record already carries a hash.
func Account(candidate domain.Account, plainPassword string, isUpdate bool) error {
	if strings.TrimSpace(candidate.FirstName) == "" {
		return domain.NewValidationError("firstName", "must not be empty")
	}
	if strings.TrimSpace(candidate.LastName) == "" {
		return domain.NewValidationError("lastName", "must not be empty")
	}
	if strings.TrimSpace(candidate.Username) == "" {
		return domain.NewValidationError("username", "must not be empty")
	}
	if !isUpdate && strings.TrimSpace(plainPassword) == "" {
		return domain.NewValidationError("password", "must not be empty")
	}
	if strings.TrimSpace(candidate.Email) == "" {
		return domain.NewValidationError("email", "must not be empty")
	}
	if !emailPattern.MatchString(candidate.Email) {
		return domain.NewValidationError("email", "must be a valid address")
	}
	if !candidate.Plan.Valid() {
		return domain.NewValidationError("plan", "must be one of BASIC, FREE, PREMIUM, PRO, ADVANCED")
	}
	if !candidate.Role.Valid() {
		return domain.NewValidationError("role", "must be USER or ADMIN")
	}
	if candidate.CoinsAmount < 0 {
		return domain.NewValidationError("coinsAmount", "must not be negative")
	}
	return nil
}
