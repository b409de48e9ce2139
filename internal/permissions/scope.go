package permissions

import (
	"fmt"

	"github.com/opexlabs/formscore/internal/models"
)

// Scope restricts where a grant (or a query) applies. A nil field means
// unrestricted across that dimension; the empty string is an ordinary value.
// The (nil, nil) scope is the maximal one held by unrestricted admins.
type Scope struct {
	Company  *string
	Category *string
}

// Unrestricted is the maximal scope covering every company and category.
var Unrestricted = Scope{}

// ScopeFor builds a fully specified scope from literal values.
func ScopeFor(company, category string) Scope {
	return Scope{Company: &company, Category: &category}
}

// IsUnrestricted reports whether the scope spans all companies and categories.
func (s Scope) IsUnrestricted() bool {
	return s.Company == nil && s.Category == nil
}

// Matches decides whether this granted scope authorises access to the
// requested scope. Each dimension is independent: an absent granted field
// matches any request, while a present granted field requires exact equality
// and therefore never satisfies a request that is itself unscoped in that
// dimension. A grant scoped to one company must not answer for all of them.
func (s Scope) Matches(requested Scope) bool {
	return dimensionMatches(s.Company, requested.Company) &&
		dimensionMatches(s.Category, requested.Category)
}

func dimensionMatches(granted, requested *string) bool {
	if granted == nil {
		return true
	}
	if requested == nil {
		return false
	}
	return *granted == *requested
}

// String renders the scope for logs and audit metadata, using * for
// unrestricted dimensions.
func (s Scope) String() string {
	return fmt.Sprintf("(%s, %s)", dimensionString(s.Company), dimensionString(s.Category))
}

func dimensionString(v *string) string {
	if v == nil {
		return "*"
	}
	return *v
}

// GrantScope extracts the scope embedded in a stored grant record.
func GrantScope(g *models.PermissionGrant) Scope {
	return Scope{Company: g.Company, Category: g.Category}
}
