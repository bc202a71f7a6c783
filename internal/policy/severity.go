package policy

// defaultSeverity is the static table of default severities per check type,
// consulted when a policy does not override one (§4.B).
var defaultSeverity = map[CheckType]Severity{
	CheckLatestTag:        SeverityHigh,
	CheckMissingLiveness:  SeverityMedium,
	CheckMissingReadiness: SeverityLow,
	CheckHighRestarts:     SeverityCritical,
	CheckPending:          SeverityMedium,
}

// DefaultSeverity returns the baseline severity for a check type, falling
// back to medium for an unrecognized type (never expected in practice since
// CheckType is a closed enum).
func DefaultSeverity(check CheckType) Severity {
	if s, ok := defaultSeverity[check]; ok {
		return s
	}
	return SeverityMedium
}

// EffectiveSeverity resolves overrides.get(type) ?? defaults(type).
func EffectiveSeverity(check CheckType, overrides *SeverityOverrides) Severity {
	if s := overrides.Get(check); s != nil {
		return *s
	}
	return DefaultSeverity(check)
}

// BaseWeight is the static table of fixed scoring weights per check type
// (§4.B).
var BaseWeight = map[CheckType]uint32{
	CheckLatestTag:        5,
	CheckMissingLiveness:  3,
	CheckMissingReadiness: 2,
	CheckHighRestarts:     6,
	CheckPending:          4,
}
