package live

import (
	"errors"
	"fmt"
	"regexp"
)

// FunctionDeclaration describes one function the remote model may call. The
// list is sent once inside the setup message and cannot change for the
// lifetime of a session.
type FunctionDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Parameters is a JSON-schema object describing the arguments, e.g.
	//
	//	{"type": "object", "properties": {"enabled": {"type": "boolean"}}, "required": ["enabled"]}
	Parameters map[string]any `json:"parameters,omitempty"`
}

var functionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{0,63}$`)

// Validate checks that the declaration can be sent to the remote service.
func (d FunctionDeclaration) Validate() error {
	if !functionNamePattern.MatchString(d.Name) {
		return fmt.Errorf("live: function name %q must start with a letter or underscore and use at most 64 of [A-Za-z0-9_.-]", d.Name)
	}
	if d.Parameters == nil {
		return nil
	}
	if typ, ok := d.Parameters["type"]; ok && typ != "object" {
		return fmt.Errorf("live: function %q: parameters type must be \"object\", got %v", d.Name, typ)
	}
	return nil
}

// ValidateDeclarations validates every declaration and rejects duplicate
// names. All problems are reported together.
func ValidateDeclarations(decls []FunctionDeclaration) error {
	var errs []error
	seen := make(map[string]struct{}, len(decls))
	for _, d := range decls {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[d.Name]; dup {
			errs = append(errs, fmt.Errorf("live: duplicate function %q", d.Name))
			continue
		}
		seen[d.Name] = struct{}{}
	}
	return errors.Join(errs...)
}
