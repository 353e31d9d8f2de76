package validation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/entity"
)

// ComponentKey is the discriminator naming the component of a dynamic zone item
const ComponentKey = "__component"

// maximum component nesting, guards against components which contain themselves
const maxDepth = 8

// Validator applies generated rules to attributes
type Validator struct {
	types  TypeResolver
	unique UniqueChecker
}

// New returns a validator. unique may be nil, then uniqueness is not checked.
func New(types TypeResolver, unique UniqueChecker) *Validator {
	return &Validator{types: types, unique: unique}
}

// Validate checks attributes against the rules of ct and returns the attributes which have a rule.
// All violations are collected into one *core.ValidationError.
func (v *Validator) Validate(ctx context.Context, ct *catalog.ContentType, attributes map[string]any, exceptID string) (map[string]any, error) {
	verr := core.NewValidationError()
	out, err := v.validate(ctx, ct, attributes, exceptID, "", verr, 0)
	if err != nil {
		return nil, err
	}
	if err := verr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Validator) validate(ctx context.Context, ct *catalog.ContentType, attributes map[string]any, exceptID, prefix string, verr *core.ValidationError, depth int) (map[string]any, error) {
	if depth > maxDepth {
		verr.Add(strings.TrimSuffix(prefix, "."), "is nested too deeply")
		return nil, nil
	}
	out := map[string]any{}
	rules := Rules(ct, exceptID)
	if ct.IsComponent {
		rules = rules[:len(ct.Fields)]
	}
	for _, fr := range rules {
		value, present := attributes[fr.Key]
		path := prefix + fr.Key
		if !present || isEmpty(value) {
			if fr.Has(RuleRequired) {
				verr.Add(path, "is required")
			} else if present {
				out[fr.Key] = nil
			}
			continue
		}
		ok, err := v.check(ctx, fr, value, path, verr, depth)
		if err != nil {
			return nil, err
		}
		if ok {
			out[fr.Key] = value
		}
	}
	return out, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

func (v *Validator) check(ctx context.Context, fr FieldRules, value any, path string, verr *core.ValidationError, depth int) (bool, error) {
	valid := true
	fail := func(msg string) {
		verr.Add(path, msg)
		valid = false
	}
	for _, rule := range fr.Rules {
		if !valid {
			break
		}
		switch rule {
		case RuleString:
			if _, ok := value.(string); !ok {
				fail("must be a string")
			}
		case RuleMax255:
			if s, ok := value.(string); ok && utf8.RuneCountInString(s) > 255 {
				fail("may not be greater than 255 characters")
			}
		case RuleMaxLocale:
			if s, ok := value.(string); ok && utf8.RuneCountInString(s) > 12 {
				fail("may not be greater than 12 characters")
			}
		case RuleEmail:
			if !isFormat("email", value) {
				fail("must be a valid email address")
			}
		case RuleIn:
			s, _ := value.(string)
			if !contains(fr.Options, s) {
				fail("must be one of: " + strings.Join(fr.Options, ", "))
			}
		case RuleInteger:
			if !isInteger(value) {
				fail("must be an integer")
			}
		case RuleBoolean:
			if !isBoolean(value) {
				fail("must be true or false")
			}
		case RuleDate:
			s, ok := value.(string)
			if _, parsed := entity.ParseDatetime(s); !ok || !parsed {
				fail("must be a valid date")
			}
		case RuleArray:
			switch value.(type) {
			case []any, map[string]any:
			default:
				fail("must be an array")
			}
		case RuleObject:
			if _, ok := value.(map[string]any); !ok {
				fail("must be an object")
			}
		case RuleIdentifier:
			if !isFormat("uuid", value) {
				fail("must be a valid identifier")
			}
		case RuleIdentifiers:
			items, ok := value.([]any)
			if !ok {
				fail("must be an array of identifiers")
				break
			}
			for i, item := range items {
				if !isFormat("uuid", item) {
					verr.Add(path+"."+strconv.Itoa(i), "must be a valid identifier")
					valid = false
				}
			}
		case RuleUnique:
			if v.unique == nil {
				continue
			}
			taken, err := v.unique.Exists(ctx, fr.Table, fr.Column, value, fr.ExceptID)
			if err != nil {
				return false, err
			}
			if taken {
				fail("has already been taken")
			}
		case RuleComponent:
			if err := v.component(ctx, fr.ComponentID, value.(map[string]any), path, verr, depth); err != nil {
				return false, err
			}
		case RuleDynamicZone:
			items, ok := value.([]any)
			if !ok {
				fail("must be a list of components")
				break
			}
			if err := v.dynamicZone(ctx, fr.AllowedComponentIDs, items, path, verr, depth); err != nil {
				return false, err
			}
		}
	}
	return valid, nil
}

func (v *Validator) component(ctx context.Context, id string, value map[string]any, path string, verr *core.ValidationError, depth int) error {
	ct, err := v.types.TypeByID(ctx, id)
	if err != nil {
		return fmt.Errorf("component of %s: %w", path, err)
	}
	_, err = v.validate(ctx, ct, value, "", path+".", verr, depth+1)
	return err
}

func (v *Validator) dynamicZone(ctx context.Context, allowed []string, items []any, path string, verr *core.ValidationError, depth int) error {
	components := map[string]*catalog.ContentType{}
	for _, id := range allowed {
		ct, err := v.types.TypeByID(ctx, id)
		if err != nil {
			return fmt.Errorf("dynamic zone %s: %w", path, err)
		}
		components[ct.Slug] = ct
	}
	for i, item := range items {
		itemPath := path + "." + strconv.Itoa(i)
		obj, ok := item.(map[string]any)
		if !ok {
			verr.Add(itemPath, "must be an object")
			continue
		}
		slug, _ := obj[ComponentKey].(string)
		if slug == "" {
			verr.Add(itemPath+"."+ComponentKey, "is required")
			continue
		}
		ct, ok := components[slug]
		if !ok {
			verr.Add(itemPath+"."+ComponentKey, "is not an allowed component")
			continue
		}
		if _, err := v.validate(ctx, ct, obj, "", itemPath+".", verr, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// isFormat checks a string against a named json schema format. Non-strings fail.
func isFormat(format string, v any) bool {
	s, ok := v.(string)
	return ok && gojsonschema.FormatCheckers.IsFormat(format, s)
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func isInteger(v any) bool {
	var n float64
	switch t := v.(type) {
	case int:
		n = float64(t)
	case int32:
		return true
	case int64:
		n = float64(t)
	case float64:
		if t != math.Trunc(t) {
			return false
		}
		n = t
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return false
		}
		n = float64(i)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return false
		}
		n = float64(i)
	default:
		return false
	}
	// integer columns are 32 bit
	return n >= math.MinInt32 && n <= math.MaxInt32
}

func isBoolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return true
	case float64:
		return t == 0 || t == 1
	case int:
		return t == 0 || t == 1
	case string:
		return t == "0" || t == "1" || t == "true" || t == "false"
	}
	return false
}
