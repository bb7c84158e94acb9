package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	timestampBits = 41
	machineIDBits = 10
	sequenceBits  = 12

	maxMachineID = (1 << machineIDBits) - 1
	maxSequence  = (1 << sequenceBits) - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits

	// DefaultEpoch is 2024-01-01T00:00:00Z in unix milliseconds.
	DefaultEpoch int64 = 1704067200000
)

// Snowflake issues 64-bit time-ordered ids. It is both a Generator (decimal
// string form) and a Sequencer (raw int64 form).
type Snowflake struct {
	mu        sync.Mutex
	epoch     int64
	machineID int64
	sequence  int64
	lastTime  int64
	now       func() int64
}

// NewSnowflake creates a Snowflake. machineID must be in [0, 1023].
func NewSnowflake(machineID, epoch int64) (*Snowflake, error) {
	if machineID < 0 || machineID > maxMachineID {
		return nil, fmt.Errorf("machine_id must be between 0 and %d, got %d", maxMachineID, machineID)
	}
	return &Snowflake{
		epoch:     epoch,
		machineID: machineID,
		now:       func() int64 { return time.Now().UnixMilli() },
	}, nil
}

func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// A clock that steps backwards keeps issuing from the last observed
	// millisecond so the sequence never decreases.
	if now < s.lastTime {
		now = s.lastTime
	}
	if now-s.epoch < 0 {
		return 0, fmt.Errorf("current time is before custom epoch")
	}

	if now == s.lastTime {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			now++
		}
	} else {
		s.sequence = 0
	}
	s.lastTime = now

	return ((now - s.epoch) << timestampShift) | (s.machineID << machineIDShift) | s.sequence, nil
}

func (s *Snowflake) Generate() (string, error) {
	n, err := s.Next()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

