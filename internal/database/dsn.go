package database

import "sort"

// mergeOptions overlays overrides on defaults and returns sorted key=value
// pairs so the same config always yields the same DSN.
func mergeOptions(defaults, overrides map[string]string) []string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for key, value := range defaults {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}

	pairs := make([]string, 0, len(merged))
	for key, value := range merged {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return pairs
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultPort(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
