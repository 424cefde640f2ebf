package domain

import (
	"fmt"
	"time"
)

// PublicIPRecord is the stored value under the public ip key.
type PublicIPRecord struct {
	PublicIP           string    `json:"public_ip"`
	Timestamp          time.Time `json:"timestamp"`
	TimestampFormatted string    `json:"timestamp_formatted"`
	UpdatedAt          time.Time `json:"updated_at"`
	PublisherID        string    `json:"publisher_id,omitempty"`
}

// ServerTimeRecord is the stored value under the server time key.
type ServerTimeRecord struct {
	UTCTimestamp  time.Time `json:"utc_timestamp"`
	UTCFormatted  string    `json:"utc_formatted"`
	Timezones     ZoneTable `json:"timezones"`
	ClockOffsetMS *int64    `json:"clock_offset_ms,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	PublisherID   string    `json:"publisher_id,omitempty"`
}

// NewRecord builds the store representation of s.
func NewRecord(s Snapshot, updatedAt time.Time, publisherID string) (any, error) {
	updatedAt = updatedAt.UTC()
	switch v := s.(type) {
	case IPSnapshot:
		return PublicIPRecord{
			PublicIP:           v.Address,
			Timestamp:          v.At.UTC(),
			TimestampFormatted: FormatInstant(v.At),
			UpdatedAt:          updatedAt,
			PublisherID:        publisherID,
		}, nil
	case ClockSnapshot:
		rec := ServerTimeRecord{
			UTCTimestamp: v.UTC.UTC(),
			UTCFormatted: FormatInstant(v.UTC),
			Timezones:    v.Zones,
			UpdatedAt:    updatedAt,
			PublisherID:  publisherID,
		}
		if v.Offset != nil {
			ms := v.Offset.Milliseconds()
			rec.ClockOffsetMS = &ms
		}
		return rec, nil
	case nil:
		return nil, fmt.Errorf("nil snapshot")
	default:
		return nil, fmt.Errorf("unsupported snapshot type %T", s)
	}
}

// Snapshot rebuilds the observation carried by the record.
func (r PublicIPRecord) Snapshot() IPSnapshot {
	return IPSnapshot{Address: r.PublicIP, At: r.Timestamp}
}

// Snapshot rebuilds the observation carried by the record.
func (r ServerTimeRecord) Snapshot() ClockSnapshot {
	s := ClockSnapshot{UTC: r.UTCTimestamp, Zones: r.Timezones}
	if r.ClockOffsetMS != nil {
		d := time.Duration(*r.ClockOffsetMS) * time.Millisecond
		s.Offset = &d
	}
	return s
}
