package muster

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
	Metadata         map[string]string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	Kinds              []EventKind
	Sources            []EventSource
	RequireMessage     bool
	RequireCommand     bool
	CommandNames       []string
	RequireStateChange bool
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if len(i.Sources) > 0 && !sourceIncluded(i.Sources, event.Source) {
		return false
	}
	if i.RequireMessage && event.Message == nil {
		return false
	}
	if i.RequireCommand {
		if event.Command == nil {
			return false
		}
		if len(i.CommandNames) > 0 && !containsName(i.CommandNames, event.Command.Name) {
			return false
		}
	}
	if i.RequireStateChange && event.StateChange == nil {
		return false
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allKindsIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if i.RequireMessage && !filter.RequireMessage {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if len(i.CommandNames) > 0 && !allNamesIncluded(filter.CommandNames, i.CommandNames) {
		return false
	}
	if i.RequireStateChange && !filter.RequireStateChange {
		return false
	}

	return true
}

// containsKind reports whether target is present in kinds.
func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

// containsName reports whether target is present in names.
func containsName(names []string, target string) bool {
	for _, candidate := range names {
		if candidate == target {
			return true
		}
	}

	return false
}

// sourceIncluded reports whether an event source matches any declared source filter.
// An empty filter field acts as a wildcard for that dimension.
func sourceIncluded(sources []EventSource, target EventSource) bool {
	for _, candidate := range sources {
		if candidate.Platform != "" && candidate.Platform != target.Platform {
			continue
		}
		if candidate.ID != "" && candidate.ID != target.ID {
			continue
		}

		return true
	}

	return false
}

// allKindsIncluded reports whether subset is fully contained in allowed.
func allKindsIncluded(subset, allowed []EventKind) bool {
	for _, item := range subset {
		if !containsKind(allowed, item) {
			return false
		}
	}

	return true
}

// allNamesIncluded reports whether subset is fully contained in allowed.
func allNamesIncluded(subset, allowed []string) bool {
	for _, item := range subset {
		if !containsName(allowed, item) {
			return false
		}
	}

	return true
}
