package chat

import (
	"fmt"
	"strings"
)

// Mode selects the behavioural instruction prefixed to every outgoing user
// message. It is fixed for the lifetime of a Session.
type Mode string

const (
	ModeDefault    Mode = "default"
	ModeAnalytical Mode = "analytical"
	ModeNarrative  Mode = "narrative"
)

var modePrefixes = map[Mode]string{
	ModeDefault:    "",
	ModeAnalytical: "[Focus on strategic reasoning and second-order effects] ",
	ModeNarrative:  "[Speak from your personal journey and systems philosophy] ",
}

// Prefix returns the instruction prepended to user messages in this mode.
func (m Mode) Prefix() string {
	return modePrefixes[m]
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	_, ok := modePrefixes[m]
	return ok
}

// ParseMode accepts the canonical names plus the product labels shown in
// the mode selector (platform/intelligence, strategy, founder). Blank input
// yields ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "intelligence", "platform":
		return ModeDefault, nil
	case "analytical", "strategy":
		return ModeAnalytical, nil
	case "narrative", "founder":
		return ModeNarrative, nil
	}
	return "", fmt.Errorf("chat: unknown mode %q", s)
}
