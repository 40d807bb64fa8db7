package session

import (
	"fmt"
	"regexp"
)

// Session names become directory names under ~/.trovia/sessions and must be
// safe as path segments on every platform: lowercase, starting with a
// letter, at most 32 chars.
var nameRegexp = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: lowercase letters, digits, '-' and '_' only, starting with a letter, 32 chars max", name)
	}
	return nil
}
