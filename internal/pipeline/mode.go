package pipeline

// Mode selects one of three mutually exclusive generation flows.
type Mode string

const (
	ModeReactivation Mode = "reactivation"
	ModeFirstContact Mode = "first_contact"
	ModeNormal       Mode = "normal"
)

// SelectMode resolves the request flags into exactly one mode. Reactivation
// takes precedence over first contact when both flags are set; there is no
// ambiguous state.
func SelectMode(isReactivation, isFirstContact bool) Mode {
	switch {
	case isReactivation:
		return ModeReactivation
	case isFirstContact:
		return ModeFirstContact
	default:
		return ModeNormal
	}
}
