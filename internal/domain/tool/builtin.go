package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
)

// CurrentTimeArgs are the arguments of the current_time tool.
type CurrentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name such as Europe/Paris. Defaults to UTC."`
}

// TextStatsArgs are the arguments of the text_stats tool.
type TextStatsArgs struct {
	Text string `json:"text" jsonschema:"required,description=Text to analyse"`
}

// Builtins returns the tools served in-process. now is injectable for tests.
func Builtins(now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	return []Tool{
		{
			Descriptor: Descriptor{
				Name:        "current_time",
				Description: "Returns the current date and time in the requested time zone.",
				Class:       ClassLookup,
				Parameters:  SchemaFor(&CurrentTimeArgs{}),
			},
			Executor: ExecutorFunc(func(ctx context.Context, raw map[string]any) (any, error) {
				var args CurrentTimeArgs
				if err := DecodeArguments(raw, &args); err != nil {
					return nil, err
				}
				zone := strings.TrimSpace(args.Timezone)
				if zone == "" {
					zone = "UTC"
				}
				loc, err := time.LoadLocation(zone)
				if err != nil {
					return nil, fmt.Errorf("unknown time zone %q", zone)
				}
				current := now().In(loc)
				return map[string]any{
					"timezone": zone,
					"time":     current.Format(time.RFC3339),
					"weekday":  current.Weekday().String(),
				}, nil
			}),
		},
		{
			Descriptor: Descriptor{
				Name:        "text_stats",
				Description: "Counts characters, words and lines of a piece of text.",
				Class:       ClassCompute,
				Parameters:  SchemaFor(&TextStatsArgs{}),
			},
			Executor: ExecutorFunc(func(ctx context.Context, raw map[string]any) (any, error) {
				var args TextStatsArgs
				if err := DecodeArguments(raw, &args); err != nil {
					return nil, err
				}
				lines := 0
				if args.Text != "" {
					lines = strings.Count(args.Text, "\n") + 1
				}
				return map[string]any{
					"characters": utf8.RuneCountInString(args.Text),
					"words":      len(strings.Fields(args.Text)),
					"lines":      lines,
				}, nil
			}),
		},
	}
}

// SchemaFor reflects v into a JSON schema object usable as tool parameters.
func SchemaFor(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(v)
	data, err := schema.MarshalJSON()
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// DecodeArguments converts a parsed argument map into a typed struct.
func DecodeArguments(raw map[string]any, dst any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrorInvalidArgument, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s: %w", ErrorInvalidArgument, err)
	}
	return nil
}
