package shortener

import (
	"errors"
	"fmt"
	"time"

	"github.com/sundayezeilo/linkusage/internal/errx"
)

const (
	DefaultMaxResult = 10
	DefaultOffset    = 0
)

// State is the lifecycle state of a mapping. The only transition is
// Active -> Deleted, and Deleted is terminal.
type State uint8

const (
	StateActive State = iota
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// StateFromActive converts the persisted boolean flag.
func StateFromActive(active bool) State {
	if active {
		return StateActive
	}
	return StateDeleted
}

// ErrAlreadyDeleted is the root cause of every AlreadyDeleted error.
var ErrAlreadyDeleted = errors.New("url mapping is already deleted")

// Delete returns the state after a soft delete.
func (s State) Delete() (State, error) {
	if s != StateActive {
		return s, ErrAlreadyDeleted
	}
	return StateDeleted, nil
}

// Mapping associates an initial URL with its short form.
type Mapping struct {
	ID         int64
	InitialURL string
	ShortURL   string
	CreatedAt  time.Time
	State      State
}

func (m Mapping) Active() bool { return m.State == StateActive }

// UsageEvent records one successful resolution of a mapping.
type UsageEvent struct {
	ID            int64
	URLID         int64
	UsageDatetime time.Time
	ClientHost    string
	ClientPort    int
}

// Client identifies the requester recorded on a usage event.
type Client struct {
	Host string
	Port int
}

// Pagination bounds a full-info usage listing.
type Pagination struct {
	MaxResult int
	Offset    int
}

func DefaultPagination() Pagination {
	return Pagination{MaxResult: DefaultMaxResult, Offset: DefaultOffset}
}

// Validate rejects a page size below one or a negative offset.
func (p Pagination) Validate() error {
	const op = "shortener.Pagination.Validate"
	if p.MaxResult < 1 {
		return errx.E(op, errx.Invalid, fmt.Errorf("max-result must be >= 1, got %d", p.MaxResult))
	}
	if p.Offset < 0 {
		return errx.E(op, errx.Invalid, fmt.Errorf("offset must be >= 0, got %d", p.Offset))
	}
	return nil
}

// UsageStatus is either a count (FullInfo false) or a page of events.
type UsageStatus struct {
	FullInfo bool
	Count    int64
	Events   []UsageEvent
}
