package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags plus custom rules
// that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	userNames := make(map[string]bool)
	for i, u := range cfg.Seed.Users {
		if userNames[u.Name] {
			return fmt.Errorf("seed.users[%d]: duplicate user name %q", i, u.Name)
		}
		userNames[u.Name] = true
	}

	groupNames := make(map[string]bool)
	for i, g := range cfg.Seed.Groups {
		if groupNames[g.Name] {
			return fmt.Errorf("seed.groups[%d]: duplicate group name %q", i, g.Name)
		}
		groupNames[g.Name] = true

		for _, member := range g.Members {
			if !userNames[member] {
				return fmt.Errorf("seed.groups[%d]: member %q is not a seeded user", i, member)
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
