package config

import (
	"fmt"
	"net/url"
	"strings"

	"polaris-hq/polaris/pkg/adaptors"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access
// to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any validation rules fail. All validation errors
// are collected and returned together rather than failing on the first.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateBatch(&cfg.Batch)...)
	errs = append(errs, validateEndpoints(cfg.Endpoints)...)
	errs = append(errs, validateFederatedModels(cfg)...)
	errs = append(errs, validateAPIKeys(cfg.APIKeys)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must not be negative",
		})
	}
	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q (valid: sqlite, memory)", cfg.Backend),
		})
	}
	switch cfg.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "store.driver",
			Message: fmt.Sprintf("unknown driver %q (valid: sqlite3, sqlite)", cfg.Driver),
		})
	}
	if cfg.Backend == "sqlite" && cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "store.path",
			Message: "database path is required for the sqlite backend",
		})
	}
	return errs
}

func validateBatch(cfg *BatchConfig) []FieldError {
	var errs []FieldError

	if cfg.UserCap < 1 {
		errs = append(errs, FieldError{
			Field:   "batch.user_cap",
			Message: "user cap must be at least 1",
		})
	}
	if cfg.Retention <= 0 {
		errs = append(errs, FieldError{
			Field:   "batch.retention",
			Message: "retention must be positive",
		})
	}
	return errs
}

func validateEndpoints(endpoints []EndpointConfig) []FieldError {
	var errs []FieldError

	slugs := make(map[string]bool, len(endpoints))
	statusSource := make(map[string]string)

	for i, ep := range endpoints {
		field := func(name string) string {
			return fmt.Sprintf("endpoints[%d].%s", i, name)
		}

		if ep.Slug == "" {
			errs = append(errs, FieldError{Field: field("slug"), Message: "slug is required"})
		} else if slugs[ep.Slug] {
			errs = append(errs, FieldError{
				Field:   field("slug"),
				Message: fmt.Sprintf("duplicate endpoint slug %q", ep.Slug),
			})
		}
		slugs[ep.Slug] = true

		if ep.Cluster == "" {
			errs = append(errs, FieldError{Field: field("cluster"), Message: "cluster is required"})
		}
		if ep.Framework == "" {
			errs = append(errs, FieldError{Field: field("framework"), Message: "framework is required"})
		}
		if ep.Model == "" {
			errs = append(errs, FieldError{Field: field("model"), Message: "model is required"})
		}

		// Unknown adaptor types are rejected here, at load time, rather
		// than when the first request arrives.
		if !adaptors.IsRegistered(ep.Type) {
			errs = append(errs, FieldError{
				Field:   field("type"),
				Message: fmt.Sprintf("unknown adaptor type %q (registered: %v)", ep.Type, adaptors.Registered()),
			})
		}

		if ep.URL == "" {
			errs = append(errs, FieldError{Field: field("url"), Message: "url is required"})
		} else if u, err := url.Parse(ep.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   field("url"),
				Message: fmt.Sprintf("invalid url %q", ep.URL),
			})
		}

		if ep.ClusterStatus && ep.Cluster != "" {
			if prev, dup := statusSource[ep.Cluster]; dup {
				errs = append(errs, FieldError{
					Field:   field("cluster_status"),
					Message: fmt.Sprintf("cluster %q already has status source %q", ep.Cluster, prev),
				})
			} else {
				statusSource[ep.Cluster] = ep.Slug
			}
		}
	}
	return errs
}

func validateFederatedModels(cfg *Config) []FieldError {
	var errs []FieldError

	bySlug := make(map[string]*EndpointConfig, len(cfg.Endpoints))
	for i := range cfg.Endpoints {
		bySlug[cfg.Endpoints[i].Slug] = &cfg.Endpoints[i]
	}

	names := make(map[string]bool, len(cfg.FederatedModels))
	for i, fm := range cfg.FederatedModels {
		field := func(name string) string {
			return fmt.Sprintf("federated_models[%d].%s", i, name)
		}

		if fm.Name == "" {
			errs = append(errs, FieldError{Field: field("name"), Message: "name is required"})
		} else if names[fm.Name] {
			errs = append(errs, FieldError{
				Field:   field("name"),
				Message: fmt.Sprintf("duplicate federated model %q", fm.Name),
			})
		}
		names[fm.Name] = true

		if len(fm.Targets) == 0 {
			errs = append(errs, FieldError{
				Field:   field("targets"),
				Message: "at least one target is required",
			})
		}
		for j, target := range fm.Targets {
			ep, known := bySlug[target.Endpoint]
			if !known {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("federated_models[%d].targets[%d].endpoint", i, j),
					Message: fmt.Sprintf("unknown endpoint %q", target.Endpoint),
				})
				continue
			}
			// Every target must serve the federated model itself; a
			// target on a different backend model would silently route
			// requests to the wrong model.
			if fm.Name != "" && ep.Model != fm.Name {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("federated_models[%d].targets[%d].endpoint", i, j),
					Message: fmt.Sprintf("endpoint %q serves model %q, not %q", target.Endpoint, ep.Model, fm.Name),
				})
			}
		}
	}
	return errs
}

func validateAPIKeys(keys []APIKeyConfig) []FieldError {
	var errs []FieldError

	seen := make(map[string]bool, len(keys))
	for i, key := range keys {
		field := func(name string) string {
			return fmt.Sprintf("api_keys[%d].%s", i, name)
		}

		if key.Key == "" {
			errs = append(errs, FieldError{Field: field("key"), Message: "key is required"})
		} else if seen[key.Key] {
			errs = append(errs, FieldError{Field: field("key"), Message: "duplicate key"})
		}
		seen[key.Key] = true

		if key.Username == "" {
			errs = append(errs, FieldError{Field: field("username"), Message: "username is required"})
		}
		if key.Email != "" && !strings.Contains(key.Email, "@") {
			errs = append(errs, FieldError{
				Field:   field("email"),
				Message: fmt.Sprintf("invalid email %q", key.Email),
			})
		}
	}
	return errs
}
