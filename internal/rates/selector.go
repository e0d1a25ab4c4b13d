package rates

import (
	"strings"
)

// ShippingRate is the narrow view of a computed rate the selector needs.
type ShippingRate struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Cost     float64 `json:"cost"`
	MethodID string  `json:"method_id"`
	Chosen   bool    `json:"chosen"`
}

// Select marks the rate matching the stored selection as chosen. Exact id
// match wins; otherwise rates are compared by their instance-id suffix
// ("method_id:instance_id"), which survives zone prefixes the stored value
// never saw. The full list always comes back so the shopper can still change
// their mind; nothing is filtered out.
func Select(list []ShippingRate, stored string) []ShippingRate {
	if stored == "" {
		return list
	}

	match := -1
	for i := range list {
		if list[i].ID == stored {
			match = i
			break
		}
	}

	if match < 0 {
		suffix := instanceSuffix(stored)
		if suffix != "" {
			for i := range list {
				if instanceSuffix(list[i].ID) == suffix {
					match = i
					break
				}
			}
		}
	}

	if match < 0 {
		return list
	}

	out := make([]ShippingRate, len(list))
	copy(out, list)
	for i := range out {
		out[i].Chosen = i == match
	}
	return out
}

// IsPickupRate reports whether a rate looks like a pickup method. The
// explicit location-to-method link is the primary mechanism; this substring
// heuristic is degraded-mode only, for rates no location is linked to.
func IsPickupRate(r ShippingRate) bool {
	if strings.HasPrefix(r.MethodID, "local_pickup") || strings.HasPrefix(r.ID, "local_pickup") {
		return true
	}
	label := strings.ToLower(r.Label)
	return strings.Contains(label, "pickup") || strings.Contains(label, "pick up")
}

// instanceSuffix keeps the trailing "method:instance" pair of a rate id, so
// "1:local_pickup:5" and "local_pickup:5" compare equal.
func instanceSuffix(id string) string {
	parts := strings.Split(id, ":")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2] + ":" + parts[len(parts)-1]
}
