package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// unknownValue substitutes placeholders whose source was unavailable.
const unknownValue = "unknown"

// renderTemplate substitutes the message template placeholders:
// {name}, {location}, {address}, {battery} and {time}. Placeholders with
// no data render as "unknown" so a degraded snapshot still produces a
// sendable message.
func renderTemplate(template string, contact trigger.Contact, snapshot *trigger.Snapshot, now time.Time) string {
	location := unknownValue
	address := unknownValue
	battery := unknownValue

	if snapshot != nil {
		if snapshot.Latitude != 0 || snapshot.Longitude != 0 {
			location = fmt.Sprintf("%.5f,%.5f", snapshot.Latitude, snapshot.Longitude)
		}

		if snapshot.Address != "" {
			address = snapshot.Address
		}

		if snapshot.BatteryPercent > 0 {
			battery = fmt.Sprintf("%d%%", snapshot.BatteryPercent)
		}
	}

	replacer := strings.NewReplacer(
		"{name}", contact.Name,
		"{location}", location,
		"{address}", address,
		"{battery}", battery,
		"{time}", now.Format(time.RFC3339),
	)

	return replacer.Replace(template)
}
