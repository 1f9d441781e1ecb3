package valuez

import (
	"fmt"
	"go/token"
	"strings"
	"unicode"
)

// ValidateName checks that name can be used for a field, virtual or method:
// non-empty, not purely numeric, and convertible to an identifier.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	numeric := true
	for _, r := range name {
		if !unicode.IsDigit(r) {
			numeric = false
			break
		}
	}
	if numeric {
		return fmt.Errorf("%w: %q is numeric", ErrInvalidName, name)
	}
	if _, err := Identifier(name); err != nil {
		return err
	}
	return nil
}

// Identifier converts an arbitrary name to a safe identifier. Runs of
// characters that are not letters or digits become word breaks in camel
// case, a leading digit gets an underscore prefix, and Go keywords get an
// underscore suffix.
//
//	Identifier("first name") == "firstName"
//	Identifier("2fa")        == "_2fa"
//	Identifier("type")       == "type_"
func Identifier(name string) (string, error) {
	var b strings.Builder
	upper := false
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	id := b.String()
	if id == "" {
		return "", fmt.Errorf("%w: %q has no identifier characters", ErrInvalidName, name)
	}
	if unicode.IsDigit([]rune(id)[0]) {
		id = "_" + id
	}
	if token.IsKeyword(id) {
		id += "_"
	}
	return id, nil
}

// SetterName returns the generated setter for a field name, e.g.
// SetterName("first name") == "setFirstName".
func SetterName(name string) (string, error) {
	id, err := Identifier(name)
	if err != nil {
		return "", err
	}
	id = strings.TrimSuffix(id, "_")
	if strings.HasPrefix(id, "_") {
		return "set" + id, nil
	}
	r := []rune(id)
	r[0] = unicode.ToUpper(r[0])
	return "set" + string(r), nil
}
