package usermgr

import "regexp"

var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}\$?$`)

// ValidUsername accepts useradd-style names: lowercase letters, digits,
// underscore and dash, starting with a letter or underscore, optionally
// ending in '$'.
func ValidUsername(u string) bool {
	return usernameRe.MatchString(u)
}
