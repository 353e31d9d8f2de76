package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/relabs-tech/kurbisio-cms/core"
)

// ContentTypeSchemaID is the id of the schema every content type definition document must satisfy
const ContentTypeSchemaID = "https://kurbisio.dev/schemas/content_type.json"

//go:embed definitions
var definitions embed.FS

var (
	definitionOnce      sync.Once
	definitionValidator *Validator
	definitionErr       error
)

// DefinitionValidator returns the validator for content type definitions
func DefinitionValidator() (*Validator, error) {
	definitionOnce.Do(func() {
		sub, err := fs.Sub(definitions, "definitions")
		if err != nil {
			definitionErr = err
			return
		}
		definitionValidator, definitionErr = NewValidatorFromFS(sub)
	})
	return definitionValidator, definitionErr
}

// ValidateDefinition checks the structure of a content type definition document.
// Violations are reported as core.ErrInvalidDefinition.
func ValidateDefinition(document any) error {
	v, err := DefinitionValidator()
	if err != nil {
		return err
	}
	var validate func() error
	switch d := document.(type) {
	case []byte:
		validate = func() error { return v.ValidateBytes(d, ContentTypeSchemaID) }
	case string:
		validate = func() error { return v.ValidateString(d, ContentTypeSchemaID) }
	default:
		validate = func() error { return v.ValidateStruct(d, ContentTypeSchemaID) }
	}
	err = validate()
	var derr *DocumentError
	if errors.As(err, &derr) {
		return fmt.Errorf("%w: %s", core.ErrInvalidDefinition, derr.Error())
	}
	return err
}
