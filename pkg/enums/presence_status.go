package enums

import "fmt"

type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusAway    PresenceStatus = "away"
	PresenceStatusOffline PresenceStatus = "offline"
)

var validPresenceStatuses = []PresenceStatus{
	PresenceStatusOnline,
	PresenceStatusAway,
	PresenceStatusOffline,
}

func (s PresenceStatus) IsValid() bool {
	for _, candidate := range validPresenceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePresenceStatus converts raw strings into PresenceStatus.
func ParsePresenceStatus(value string) (PresenceStatus, error) {
	for _, candidate := range validPresenceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid presence status %q", value)
}
