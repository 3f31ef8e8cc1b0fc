package results

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

// SchemaVersion is the artifact version this engine reads and writes
const SchemaVersion = "2.0"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// jsonPath turns a validator namespace such as
// "RegimeArtifact.regime_periods[2].end_idx" into "$.regime_periods[2].end_idx"
func jsonPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return "$" + namespace[i:]
	}
	return "$"
}

// validateStruct runs the struct tags of v and reports the first violation
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fmt.Sprintf("value %v violates %s", fe.Value(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("value %v violates %s=%s", fe.Value(), fe.Tag(), fe.Param())
		}
		return &errors.SchemaValidationError{Path: jsonPath(fe.Namespace()), Rule: fe.Tag(), Message: msg}
	}
	return &errors.SchemaValidationError{Path: "$", Rule: "struct", Message: err.Error()}
}

func schemaError(path, rule, format string, args ...interface{}) error {
	return &errors.SchemaValidationError{Path: path, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// configViolation wraps a configuration error found inside an artifact
func configViolation(path string, err error) error {
	return &errors.SchemaValidationError{Path: path, Rule: "config", Message: err.Error()}
}

// decodeStrict decodes data into v, rejecting unknown fields and trailing data
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return schemaError("$", "json", "%v", err)
	}
	if dec.More() {
		return schemaError("$", "json", "trailing data after document")
	}
	return nil
}

// toDocument normalises an arbitrary value to its generic JSON form so that
// exports and re-exports encode identically
func toDocument(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("optimization config must encode as a JSON object: %w", err)
	}
	return out, nil
}
