package entity

import (
	"fmt"
	"strconv"
	"time"
)

// UnixTime decodes provider timestamps sent as integer seconds.
type UnixTime struct {
	time.Time
}

func (ut *UnixTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == "" {
		return nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse %q as unix seconds: %w", s, err)
	}
	ut.Time = time.Unix(sec, 0).UTC()
	return nil
}

func (ut UnixTime) MarshalJSON() ([]byte, error) {
	if ut.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(ut.Unix(), 10)), nil
}
