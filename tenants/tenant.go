package tenants

import (
	"regexp"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
)

// MaxIDLength bounds tenant ids so they stay usable as storage key segments and directory names
const MaxIDLength = 128

// Tenant ids are opaque to the gateway but must be safe as a single path segment:
// no separators, no dot-only names.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]*$`)

// ValidateID reports ErrInvalidTenant for ids that cannot be used as a key namespace
func ValidateID(tenantID string) error {
	if tenantID == "" || len(tenantID) > MaxIDLength || !idPattern.MatchString(tenantID) {
		return errors.Wrapf(errors.ErrInvalidTenant, "tenant id %q", tenantID)
	}
	return nil
}
