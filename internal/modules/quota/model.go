// README: Durable daily request quota per outbound provider.
package quota

import "errors"

// ErrQuotaExhausted is returned when a provider has no requests left today.
var ErrQuotaExhausted = errors.New("provider daily quota exhausted")

// DefaultDailyLimit is the number of requests granted per provider per day.
const DefaultDailyLimit = 1000
