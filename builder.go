package dispatchy

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// NewTool builds a Tool from a typed function. The JSON Schema is generated
// from T's struct tags, the declared positional parameter order follows T's
// field order, and bound arguments are validated against the schema before fn
// runs. With WithRef the tool's adapter is registered in the reference table
// and may execute in worker processes; otherwise it is opaque and thread-only.
func NewTool[T any](
	name, description string,
	fn func(ctx context.Context, args T) (any, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	schemaMap, resolved, err := generateSchema[T](o.strict)
	if err != nil {
		return Tool{}, fmt.Errorf("tool %q: %w", name, err)
	}
	params := o.params
	if params == nil {
		params = paramOrder(reflect.TypeOf(*new(T)))
	}

	call := func(ctx context.Context, args map[string]any) (any, error) {
		if err := resolved.Validate(args); err != nil {
			return nil, fmt.Errorf("invalid arguments for %q: %w", name, err)
		}
		typed, err := decodeArgs[T](args)
		if err != nil {
			return nil, fmt.Errorf("invalid arguments for %q: %w", name, err)
		}
		return fn(ctx, typed)
	}

	var adapter Adapter
	if o.ref != "" {
		adapter = RegisterRef(o.ref, call, params...)
	} else {
		adapter = NewFuncAdapter(call, params...)
	}
	return Tool{
		Name:        name,
		Description: description,
		Schema:      schemaMap,
		Adapter:     adapter,
	}, nil
}

// decodeArgs converts a bound keyword map into the typed argument struct via
// a JSON round trip, so json tags and defaults behave as in normal decoding.
func decodeArgs[T any](args map[string]any) (T, error) {
	var typed T
	data, err := json.Marshal(args)
	if err != nil {
		return typed, err
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return typed, err
	}
	return typed, nil
}
