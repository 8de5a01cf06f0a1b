package models

import (
	"encoding/json"
	"fmt"
)

// Signal is the ordered recommendation produced by a run. The ordering
// matters only for strength comparison (strong tiers bypass rate limits);
// equality is what drives change detection.
type Signal int

const (
	SignalStrongSell Signal = iota
	SignalSell
	SignalWait
	SignalBuy
	SignalStrongBuy
)

var signalNames = map[Signal]string{
	SignalStrongSell: "STRONG_SELL",
	SignalSell:       "SELL",
	SignalWait:       "WAIT",
	SignalBuy:        "BUY",
	SignalStrongBuy:  "STRONG_BUY",
}

var signalValues = map[string]Signal{
	"STRONG_SELL": SignalStrongSell,
	"SELL":        SignalSell,
	"WAIT":        SignalWait,
	"BUY":         SignalBuy,
	"STRONG_BUY":  SignalStrongBuy,
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// ParseSignal converts the wire representation into a Signal.
func ParseSignal(s string) (Signal, error) {
	if v, ok := signalValues[s]; ok {
		return v, nil
	}
	return SignalWait, fmt.Errorf("unknown signal %q", s)
}

// IsStrong reports whether the signal is in the strongest tier.
func (s Signal) IsStrong() bool {
	return s == SignalStrongBuy || s == SignalStrongSell
}

func (s Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := ParseSignal(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Urgency is the provider-classified severity tag, independent of signal.
type Urgency string

const (
	UrgencyInfo    Urgency = "info"
	UrgencyWarning Urgency = "warning"
	UrgencyError   Urgency = "error"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyInfo, UrgencyWarning, UrgencyError:
		return true
	}
	return false
}
