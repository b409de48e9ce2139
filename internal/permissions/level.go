package permissions

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/opexlabs/formscore/pkg/errors"
)

// Level ranks the capability a grant confers over its scope.
// The order is total: Admin > Edit > View.
type Level string

const (
	LevelView  Level = "view"
	LevelEdit  Level = "edit"
	LevelAdmin Level = "admin"
)

// ErrInvalidLevel indicates a level token outside the three canonical values.
var ErrInvalidLevel = apperrors.New("PERMISSION_INVALID_LEVEL", "Invalid permission level", http.StatusBadRequest)

var levelRank = map[Level]int{
	LevelView:  1,
	LevelEdit:  2,
	LevelAdmin: 3,
}

// ParseLevel normalises a level token, rejecting anything but the three
// canonical values. The empty string is invalid; there is no default level.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return level, nil
}

// Valid reports whether the level is one of the three canonical values.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// AtLeast reports whether the level satisfies the required level.
// Unknown levels rank below View and never satisfy anything.
func (l Level) AtLeast(required Level) bool {
	return levelRank[l] >= levelRank[required] && levelRank[required] > 0
}
