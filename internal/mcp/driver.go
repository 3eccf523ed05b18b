package mcp

import (
	"context"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
)

// defaultOperationTimeout is the per-operation deadline ceiling.
const defaultOperationTimeout = 30 * time.Second

// handlerFunc is the driver-facing shape of one tool implementation.
type handlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// drive wraps a tool handler with the operation driver: it allocates an
// operation id unless one was inherited, installs it into the context,
// applies the per-operation timeout, records the outcome, and maps every
// failure into the error taxonomy. The id is cleared when the handler
// returns because the context carrying it dies with the call.
func (s *Server) drive(name string, handler handlerFunc) handlerFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		opID := logging.GetOperationID(ctx)
		if opID == "" {
			opID = logging.NewOperationID()
		}
		ctx = logging.WithOperationID(ctx, opID)
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		s.logger.DebugContext(ctx, "operation started", "operation", name)

		result, err := handler(ctx, args)
		latency := time.Since(start)
		if s.analytics != nil {
			s.analytics.RecordOperation(name, latency, err != nil)
		}
		if err != nil {
			mapped := errors.Wrap(name, err)
			s.logger.WarnContext(ctx, "operation failed",
				"operation", name,
				"error_code", mapped.Code,
				"error", mapped.Message,
				"latency_ms", latency.Milliseconds())
			return nil, mapped
		}

		s.logger.DebugContext(ctx, "operation completed", "operation", name, "latency_ms", latency.Milliseconds())
		return result, nil
	}
}

// decodeArgs maps loosely-typed tool arguments onto a request struct using
// the struct's json tags. Unknown keys are ignored; type mismatches are
// validation errors.
func decodeArgs(args map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return errors.NewValidation("cannot build argument decoder: " + err.Error())
	}
	if err := decoder.Decode(args); err != nil {
		return errors.NewValidation("invalid arguments: " + err.Error())
	}
	return nil
}

// stringArg extracts a required string argument.
func stringArg(args map[string]interface{}, key string) (string, error) {
	value, ok := args[key].(string)
	if !ok || value == "" {
		return "", errors.NewValidationField(key, "required string argument")
	}
	return value, nil
}

// optionalString extracts a string argument, defaulting to "".
func optionalString(args map[string]interface{}, key string) string {
	value, _ := args[key].(string)
	return value
}

// optionalBool extracts a boolean argument, defaulting to false.
func optionalBool(args map[string]interface{}, key string) bool {
	value, _ := args[key].(bool)
	return value
}

// optionalInt extracts an integer argument, defaulting to fallback. JSON
// numbers arrive as float64.
func optionalInt(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// optionalFloat extracts a float argument, nil when absent.
func optionalFloat(args map[string]interface{}, key string) *float64 {
	switch v := args[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

// optionalStringSlice extracts a string array argument.
func optionalStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// optionalObject extracts a nested object argument.
func optionalObject(args map[string]interface{}, key string) map[string]interface{} {
	obj, _ := args[key].(map[string]interface{})
	return obj
}
