package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

type datetimeInput struct{}

// CurrentDatetime reports the current date and time in the deployment's
// configured time zone.
type CurrentDatetime struct {
	timezone string
	now      func() time.Time
}

// NewCurrentDatetime creates the get_current_datetime tool.
func NewCurrentDatetime(timezone string) *CurrentDatetime {
	return &CurrentDatetime{timezone: timezone, now: time.Now}
}

func (t *CurrentDatetime) Name() string { return "get_current_datetime" }

func (t *CurrentDatetime) Description() string {
	return "Get the current date and time. Takes no input."
}

func (t *CurrentDatetime) InputSchema() *jsonschema.Schema {
	return reflectSchema(datetimeInput{})
}

func (t *CurrentDatetime) Execute(_ context.Context, _ *ToolContext, _ string) (string, error) {
	loc, err := time.LoadLocation(t.timezone)
	if err != nil {
		loc = time.UTC
	}
	now := t.now().In(loc)
	return fmt.Sprintf("Current date and time: %s (%s)",
		now.Format("2006-01-02 15:04:05 Monday"), loc.String()), nil
}
