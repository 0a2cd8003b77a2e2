package domain

// Status is the coarse lifecycle label of a use case. The engine only
// ever writes InEvaluation, UnderValidation, InImplementation and
// Declined; Live is a display value carried for older records.
type Status int

const (
	StatusLive Status = iota
	StatusInEvaluation
	StatusUnderValidation
	StatusInImplementation
	StatusDeclined
)

var statusNames = map[Status]string{
	StatusLive:             "live",
	StatusInEvaluation:     "in-evaluation",
	StatusUnderValidation:  "under-validation",
	StatusInImplementation: "in-implementation",
	StatusDeclined:         "declined",
}

var statusesByName = func() map[string]Status {
	m := make(map[string]Status, len(statusNames))
	for status, name := range statusNames {
		m[name] = status
	}
	return m
}()

func (s Status) String() string {
	return statusNames[s]
}

// ParseStatus resolves the kebab-case wire form of a status. Unknown
// strings are a validation error, never a default.
func ParseStatus(raw string) (Status, error) {
	status, ok := statusesByName[raw]
	if !ok {
		return 0, NewValidationError("unknown status %q", raw)
	}
	return status, nil
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	status, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}
