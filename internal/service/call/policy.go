package call

import (
	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// SelectionPolicy chooses the ordered channel preference for a session.
// The orchestrator tries the first entry and falls back to the second at
// most once; further entries are ignored.
type SelectionPolicy interface {
	Select(severity trigger.Severity) []Channel
}

// PreferencePolicy is the default selection strategy. The configured
// preference decides whether the AI voice agent leads; under the
// automatic preference only the critical tier leads with the AI agent,
// because that tier assumes the user cannot speak. The conventional
// gateway always stays available as the one-shot fallback.
type PreferencePolicy struct {
	// preference is one of the config.Preference* values.
	preference string
	// ai is the AI voice-agent channel, nil when not configured.
	ai Channel
	// conventional is the plain telephony channel.
	conventional Channel
}

// NewPreferencePolicy creates the default selection strategy. Pass a nil
// ai channel when the AI voice service is not configured.
func NewPreferencePolicy(preference string, ai, conventional Channel) *PreferencePolicy {
	if preference == "" {
		preference = config.PreferenceAuto
	}

	return &PreferencePolicy{
		preference:   preference,
		ai:           ai,
		conventional: conventional,
	}
}

// Select returns the ordered channel preference for the given severity.
func (p *PreferencePolicy) Select(severity trigger.Severity) []Channel {
	switch p.preference {
	case config.PreferenceAIOnly:
		// The AI preference still keeps the conventional gateway as the
		// one-shot fallback, and degrades to it directly when the AI
		// service is not configured.
		return present(p.ai, p.conventional)
	case config.PreferenceConventionalOnly:
		return present(p.conventional)
	default:
		if p.ai != nil && severity >= trigger.SeverityCritical {
			return present(p.ai, p.conventional)
		}

		return present(p.conventional)
	}
}

// present drops nil channels so an unconfigured service is never dialed.
func present(channels ...Channel) []Channel {
	out := make([]Channel, 0, len(channels))

	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}

	return out
}
