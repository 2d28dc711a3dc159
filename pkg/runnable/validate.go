package runnable

import (
	"context"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/aretw0/braid/pkg/domain"
)

type validator struct {
	name   string
	schema *gojsonschema.Schema
	next   Runnable
}

// ValidateInput checks every input against a JSON schema before handing it
// to next. Inputs that do not conform fail with an InputError naming the
// offending fields; next is not called. schema may be a Go value (map or
// struct) or raw JSON bytes.
func ValidateInput(schema any, next Runnable) (*Unit, error) {
	var loader gojsonschema.JSONLoader
	switch s := schema.(type) {
	case []byte:
		loader = gojsonschema.NewBytesLoader(s)
	case string:
		loader = gojsonschema.NewStringLoader(s)
	default:
		loader = gojsonschema.NewGoLoader(domain.Plain(schema))
	}
	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, &domain.ConfigError{Unit: "ValidateInput", Field: "schema", Reason: err.Error(), Err: err}
	}
	v := &validator{name: "Validate(" + next.Name() + ")", schema: compiled, next: next}
	return New(v.name, v), nil
}

func (v *validator) check(input any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(domain.Plain(input)))
	if err != nil {
		return &domain.InputError{Unit: v.name, Reason: fmt.Sprintf("cannot validate input: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	field := ""
	for _, re := range result.Errors() {
		if field == "" {
			field = re.Field()
		}
		msgs = append(msgs, re.String())
	}
	return &domain.InputError{Unit: v.name, Key: field, Reason: strings.Join(msgs, "; ")}
}

func (v *validator) Invoke(ctx context.Context, input any, cfg domain.Config) (any, error) {
	if err := v.check(input); err != nil {
		return nil, err
	}
	return v.next.Invoke(ctx, input, WithConfig(cfg))
}

func (v *validator) Stream(ctx context.Context, input any, cfg domain.Config) (*Stream, error) {
	if err := v.check(input); err != nil {
		return nil, err
	}
	return v.next.Stream(ctx, input, WithConfig(cfg))
}
