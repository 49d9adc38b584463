package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/sipauth/internal/telemetry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags first, then the rules that span sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	for _, pt := range cfg.Telemetry.Profiling.ProfileTypes {
		if !telemetry.ValidProfileType(pt) {
			return fmt.Errorf("telemetry.profiling.profile_types: unknown profile type %q", pt)
		}
	}

	switch cfg.VectorStore.Type {
	case VectorStoreBadger:
		if cfg.VectorStore.Badger.Path == "" && !cfg.VectorStore.Badger.InMemory {
			return errors.New("vector_store.badger: path is required unless in_memory is set")
		}
	case VectorStoreSQL:
		if err := cfg.VectorStore.SQL.Validate(); err != nil {
			return fmt.Errorf("vector_store.sql: %w", err)
		}
	}

	for i, sub := range cfg.HSS.Subscribers {
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("hss.subscribers[%d]: %w", i, err)
		}
	}

	return nil
}

// formatValidationErrors renders one line per failed field, keeping the
// failing tag so callers can tell "required" from "oneof".
func formatValidationErrors(errs validator.ValidationErrors) error {
	lines := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			lines = append(lines, fmt.Sprintf("%s: failed '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			lines = append(lines, fmt.Sprintf("%s: failed '%s'", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(lines, "; "))
}
