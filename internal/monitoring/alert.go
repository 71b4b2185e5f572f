package monitoring

import (
	"github.com/rs/zerolog/log"
)

// Alert raises an operator alert. Alerts are logged at error level so the
// log pipeline can route them; there is no pager integration.
func Alert(message string, labels map[string]string) {
	fields := make(map[string]interface{}, len(labels))
	for k, v := range labels {
		fields[k] = v
	}
	log.Error().
		Str("alert", message).
		Fields(fields).
		Msg("ALERT: Tenancy invariant violation detected")
}
