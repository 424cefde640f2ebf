package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/utils"
)

// Kind identifies the fact a snapshot describes. Each kind maps to exactly one store key.
type Kind string

const (
	KindPublicIP   Kind = "public_ip"
	KindServerTime Kind = "server_time"
)

// ErrInvalidAddress is returned when a lookup result is not a usable IP address.
var ErrInvalidAddress = errors.New("invalid address")

// Snapshot is an immutable observation of a fact at one instant.
type Snapshot interface {
	Kind() Kind
	// Identity is the value compared by change detection.
	Identity() string
	ObservedAt() time.Time
}

// IPSnapshot is the host's public address as seen by a lookup endpoint.
type IPSnapshot struct {
	Address string
	At      time.Time
}

// NewIPSnapshot validates and normalizes raw before building the snapshot.
func NewIPSnapshot(raw string, at time.Time) (IPSnapshot, error) {
	addr, ok := utils.NormalizeAddress(raw)
	if !ok {
		return IPSnapshot{}, fmt.Errorf("%w: %q", ErrInvalidAddress, truncate(raw, 64))
	}
	return IPSnapshot{Address: addr, At: at.UTC()}, nil
}

func (s IPSnapshot) Kind() Kind            { return KindPublicIP }
func (s IPSnapshot) Identity() string      { return s.Address }
func (s IPSnapshot) ObservedAt() time.Time { return s.At }

// ClockSnapshot is a timezone conversion table derived from a single instant.
type ClockSnapshot struct {
	UTC   time.Time
	Zones ZoneTable
	// Offset is the local clock offset against an NTP reference, nil when unknown.
	Offset *time.Duration
}

func (s ClockSnapshot) Kind() Kind            { return KindServerTime }
func (s ClockSnapshot) Identity() string      { return FormatInstant(s.UTC) }
func (s ClockSnapshot) ObservedAt() time.Time { return s.UTC }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
