package datasource

// Status is the lifecycle state of one datasource.
type Status int

const (
	Idle Status = iota
	Extracting
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Extracting:
		return "extracting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is delivered once on the channel returned by Refresh.
type Result struct {
	Name   string
	Status Status
	Err    error
}
