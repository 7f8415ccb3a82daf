package domain

// TemporalType is the precision hint applied when binding a temporal value.
type TemporalType int

const (
	TemporalNone TemporalType = iota
	TemporalDate
	TemporalTime
	TemporalTimestamp
)

func (t TemporalType) String() string {
	switch t {
	case TemporalDate:
		return "date"
	case TemporalTime:
		return "time"
	case TemporalTimestamp:
		return "timestamp"
	default:
		return "none"
	}
}
