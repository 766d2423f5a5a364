package merge

import "equity-calendar/internal/model"

// Kind is the decision taken for one price point.
type Kind int

const (
	NoOp Kind = iota
	Overwritten
	Appended
	Gap
)

func (k Kind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case Overwritten:
		return "overwritten"
	case Appended:
		return "appended"
	case Gap:
		return "gap"
	}
	return "unknown"
}

// PointKind distinguishes intraday quotes from end-of-day closing prices.
type PointKind int

const (
	Quote PointKind = iota
	ClosingPrice
)

func (k PointKind) String() string {
	if k == ClosingPrice {
		return "close"
	}
	return "quote"
}

// Outcome is the result of a merge. The merger keeps no history; the
// caller applies Candle to its own storage (see Apply).
type Outcome struct {
	Kind Kind

	// Candle is the new tail for Overwritten and Appended.
	Candle model.Candle

	// Prev is the tail the point was compared against, nil if the series
	// was empty.
	Prev *model.Candle

	// Reason explains NoOp and Gap outcomes.
	Reason string
}

// Changed reports whether the outcome must be written back.
func (o Outcome) Changed() bool {
	return o.Kind == Overwritten || o.Kind == Appended
}
