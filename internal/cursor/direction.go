package cursor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"equity-calendar/internal/model"
)

// Direction is the traversal direction of a cursor.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Normalize maps any positive number to Forward and anything else to Backward.
func Normalize(n int) Direction {
	if n > 0 {
		return Forward
	}
	return Backward
}

// ParseDirection normalizes a loosely typed direction, as produced by
// formula evaluation. Numbers and numeric strings are accepted; anything
// else is an ErrInvalidArgument.
func ParseDirection(v any) (Direction, error) {
	var f float64
	switch n := v.(type) {
	case Direction:
		return Normalize(int(n)), nil
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: direction %q", model.ErrInvalidArgument, n)
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: direction %q", model.ErrInvalidArgument, n)
		}
		f = x
	default:
		return 0, fmt.Errorf("%w: direction of type %T", model.ErrInvalidArgument, v)
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("%w: direction is NaN", model.ErrInvalidArgument)
	}
	if f > 0 {
		return Forward, nil
	}
	return Backward, nil
}
