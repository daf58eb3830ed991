package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// DefaultPath is the well-known location the engine loads its configuration
// from when the host supplies neither a path nor a pre-built Solution.
const DefaultPath = "dirsync.toml"

// use a single instance of go-playground/validator Validate, it caches
// struct info
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := strings.SplitN(field.Tag.Get("toml"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return field.Name
		}
		return tag
	})
}

// Load reads and validates the solution configuration at path.
func Load(path string) (*Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a solution configuration document. The call
// either returns a fully validated Solution or an error describing the first
// offending declaration; no partial configuration escapes.
func Parse(data []byte) (*Solution, error) {
	var cfg Solution
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, newError("document", "%v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, newError("document", "unknown key %q", undecoded[0].String())
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Solution) finalize() error {
	if len(c.Connectors) == 0 {
		return newError("document", "at least one connector must be declared")
	}

	c.byName = make(map[string]int, len(c.Connectors))
	c.byID = make(map[string]int, len(c.Connectors))
	for i := range c.Connectors {
		conn := &c.Connectors[i]
		section := connectorSection(i, conn.Name)
		if conn.Directory != nil {
			if err := defaults.Set(conn.Directory); err != nil {
				return newError(section, "apply directory defaults: %v", err)
			}
		}
		if err := validate.Struct(conn); err != nil {
			return newError(section, "%s", validationReason(err))
		}
		if conn.Directory != nil && len(conn.Directory.URLs) == 0 && conn.Directory.Domain == "" {
			return newError(section, "directory settings need urls or domain")
		}
		if prev, dup := c.byName[conn.Name]; dup {
			return newError(section, "name already used by connector %d", prev+1)
		}
		if prev, dup := c.byID[conn.ID]; dup {
			return newError(section, "id %q already used by connector %q", conn.ID, c.Connectors[prev].Name)
		}
		c.byName[conn.Name] = i
		c.byID[conn.ID] = i
		if conn.Target {
			c.targets = append(c.targets, *conn)
		}
	}

	c.converters = map[Direction]map[string]int{
		Import: make(map[string]int, len(c.Imports)),
		Export: make(map[string]int, len(c.Exports)),
	}
	if err := c.finalizeSpecs(Import, c.Imports); err != nil {
		return err
	}
	if err := c.finalizeSpecs(Export, c.Exports); err != nil {
		return err
	}
	return nil
}

func (c *Solution) finalizeSpecs(dir Direction, specs []ConverterSpec) error {
	for i := range specs {
		spec := &specs[i]
		spec.direction = dir
		section := specSection(dir, i, spec.Attribute)
		if err := validate.Struct(spec); err != nil {
			return newError(section, "%s", validationReason(err))
		}
		if err := checkSpec(section, dir, *spec); err != nil {
			return err
		}
		if prev, dup := c.converters[dir][spec.Attribute]; dup {
			return newError(section, "attribute already handled by %s converter %d", dir, prev+1)
		}
		c.converters[dir][spec.Attribute] = i
	}
	return nil
}

// checkSpec enforces the per-kind declaration invariants. Violations are
// configuration errors raised here, at load time, never at conversion time.
func checkSpec(section string, dir Direction, spec ConverterSpec) *Error {
	switch spec.Kind {
	case KindPatternReplace:
		return checkPatternReplace(section, dir, spec)
	case KindConstant:
		if spec.Value == "" {
			return newError(section, "constant converter requires value")
		}
	case KindSIDString, KindGUIDString:
		if dir != Import {
			return newError(section, "%s converters are import-only", spec.Kind)
		}
	default:
		return newError(section, "unrecognized converter type %q", spec.Kind)
	}
	return nil
}

func checkPatternReplace(section string, dir Direction, spec ConverterSpec) *Error {
	if spec.Pattern != "" && spec.Literal != "" {
		return newError(section, "pattern and literal are mutually exclusive")
	}
	if spec.Pattern != "" {
		if _, err := regexp.Compile(spec.Pattern); err != nil {
			return newError(section, "invalid pattern: %v", err)
		}
	}
	switch dir {
	case Export:
		if !spec.HasMatch() {
			return newError(section, "export pattern replace requires pattern or literal")
		}
		if spec.Replacement == nil && !spec.UseDomainRoot {
			return newError(section, "export pattern replace requires replace or use_domain_root")
		}
		if spec.Replacement != nil && spec.UseDomainRoot {
			return newError(section, "replace and use_domain_root are mutually exclusive")
		}
	case Import:
		if spec.Replacement == nil {
			return newError(section, "import pattern replace requires replace")
		}
		if !spec.HasMatch() && !spec.UseDomainRoot {
			return newError(section, "import pattern replace requires pattern, literal or use_domain_root")
		}
	}
	return nil
}

func connectorSection(i int, name string) string {
	if name == "" {
		return fmt.Sprintf("connector %d", i+1)
	}
	return fmt.Sprintf("connector %q", name)
}

func specSection(dir Direction, i int, attr string) string {
	if attr == "" {
		return fmt.Sprintf("%s converter %d", dir, i+1)
	}
	return fmt.Sprintf("%s converter %q", dir, attr)
}

// validationReason flattens the first field violation into a message that
// names fields by their document keys.
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s violates %q constraint", fe.Field(), fe.Tag())
	}
}
