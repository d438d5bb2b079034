// Package clock provides the current_time function tool.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/weiche/pkg/tools"
	"github.com/rhuss/weiche/pkg/tools/registry"
)

const toolName = "current_time"

var toolParameters = json.RawMessage(`{"type":"object","properties":{"timezone":{"type":"string","description":"IANA time zone name, e.g. Europe/Berlin. Defaults to UTC."}}}`)

// New returns a provider for the current_time tool. now may be nil, in
// which case time.Now is used.
func New(now func() time.Time) *registry.Func {
	if now == nil {
		now = time.Now
	}
	def := tools.Definition{
		Name:        toolName,
		Description: "Return the current date and time in RFC 3339 format",
		Parameters:  toolParameters,
	}
	return registry.NewFunc(def, func(_ context.Context, arguments string) (string, error) {
		var args struct {
			Timezone string `json:"timezone"`
		}
		if strings.TrimSpace(arguments) != "" {
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
		}

		loc := time.UTC
		if args.Timezone != "" {
			l, err := time.LoadLocation(args.Timezone)
			if err != nil {
				return "", fmt.Errorf("unknown timezone %q", args.Timezone)
			}
			loc = l
		}
		return now().In(loc).Format(time.RFC3339), nil
	})
}
