package guard

import (
	"errors"
	"strings"
	"time"

	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

var ErrMalformedDate = errors.New("malformed_expiration_date")

// IsExpired reports whether a project whose last day is expiresOn has
// expired as of now. A project is still live on its expiration day.
func IsExpired(expiresOn string, now time.Time) (bool, error) {
	date, err := time.Parse(quotadomain.DateLayout, strings.TrimSpace(expiresOn))
	if err != nil {
		return false, ErrMalformedDate
	}
	today := now.UTC().Format(quotadomain.DateLayout)
	return date.Format(quotadomain.DateLayout) < today, nil
}
