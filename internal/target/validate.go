package target

import (
	"sort"
	"strings"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/model"
)

// ParamType is a declared rule parameter type.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
)

var validTypes = map[ParamType]struct{}{
	TypeString: {},
	TypeInt:    {},
	TypeFloat:  {},
	TypeBool:   {},
}

// Validate checks rule against the registry:
//   - a known target must declare every required parameter
//   - every parameter type must be one of string, int, float, bool
//
// Unknown targets carry no required set and only get the type check.
func (r *Registry) Validate(rule *model.Rule) error {
	if strings.TrimSpace(rule.Target) == "" {
		return apperr.Validation("rule target is required")
	}
	if t, ok := r.Get(rule.Target); ok {
		var missing []string
		for _, name := range t.Required {
			if _, ok := rule.Parameters[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return apperr.Validation("target %q requires parameters: [%s]", rule.Target, strings.Join(missing, ", "))
		}
	}

	keys := make([]string, 0, len(rule.Parameters))
	for k := range rule.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := validTypes[ParamType(rule.Parameters[k].Type)]; !ok {
			return apperr.Validation("parameter %q has invalid type %q", k, rule.Parameters[k].Type)
		}
	}
	return nil
}
