package addons

import (
	"fmt"
	"path"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ID is the identity of an add-on, taken from the name of the folder holding it.
type ID string

// IDFromPath returns the identity for a file inside an add-on folder.
//
// rel is a slash separated path relative to the source root. Files sitting
// directly in the source root do not belong to any add-on and are rejected.
func IDFromPath(rel string) (ID, error) {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return "", fmt.Errorf("%w: %q is not inside an add-on folder", ErrInvalidID, rel)
	}

	return ParseID(path.Base(dir))
}

// ParseID validates a folder name as an add-on identity.
func ParseID(name string) (ID, error) {
	if !idPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, name)
	}

	return ID(name), nil
}

func (id ID) String() string {
	return string(id)
}
