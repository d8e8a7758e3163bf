package domain

import "fmt"

// TokenKind discriminates ordinary payload from marker tokens.
type TokenKind int

const (
	// KindPayload carries user data produced by node logic.
	KindPayload TokenKind = iota
	// KindNoMessage marks that a port produced nothing this cycle.
	KindNoMessage
	// KindEndOfSequence marks that a stream has ended.
	KindEndOfSequence
)

func (k TokenKind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindNoMessage:
		return "no_message"
	case KindEndOfSequence:
		return "end_of_sequence"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Flags carries the multi-part bits of a token.
type Flags uint8

const (
	// FlagMultiPart marks a token as one fragment of a larger message.
	FlagMultiPart Flags = 1 << iota
	// FlagLastPart marks the final fragment of a multi-part message.
	FlagLastPart
)

// Token is the unit of data flowing on a connection.
//
// A Token is immutable once created. The engine never mutates a token that has
// been handed out; stamping at commit time produces a new value via Stamp.
type Token struct {
	kind     TokenKind
	payload  any
	sequence int64
	active   bool
	flags    Flags
}

// NewToken wraps a payload produced by node logic.
func NewToken(payload any) *Token {
	return &Token{kind: KindPayload, payload: payload}
}

// NoMessage returns an absence marker.
func NoMessage() *Token {
	return &Token{kind: KindNoMessage}
}

// EndOfSequence returns a stream termination marker.
func EndOfSequence() *Token {
	return &Token{kind: KindEndOfSequence}
}

// Stamp returns a copy of t carrying the commit metadata.
func (t *Token) Stamp(sequence int64, flags Flags, active bool) *Token {
	c := *t
	c.sequence = sequence
	c.flags = flags
	c.active = active
	return &c
}

func (t *Token) Kind() TokenKind { return t.kind }
func (t *Token) Payload() any    { return t.payload }
func (t *Token) Sequence() int64 { return t.sequence }
func (t *Token) IsActive() bool  { return t.active }
func (t *Token) Flags() Flags    { return t.flags }

// IsMarker reports whether the token is NoMessage or EndOfSequence.
func (t *Token) IsMarker() bool { return t.kind != KindPayload }

func (t *Token) IsNoMessage() bool     { return t.kind == KindNoMessage }
func (t *Token) IsEndOfSequence() bool { return t.kind == KindEndOfSequence }

// IsMultiPart reports whether the token is a fragment of a multi-part message.
func (t *Token) IsMultiPart() bool { return t.flags&FlagMultiPart != 0 }

// IsLastPart reports whether the token closes a multi-part message.
// Tokens that are not multi-part are trivially complete.
func (t *Token) IsLastPart() bool {
	return !t.IsMultiPart() || t.flags&FlagLastPart != 0
}

func (t *Token) String() string {
	if t.kind != KindPayload {
		return fmt.Sprintf("<%s #%d>", t.kind, t.sequence)
	}
	return fmt.Sprintf("<%v #%d>", t.payload, t.sequence)
}

// Composite is the payload of a reassembled multi-part message.
type Composite struct {
	Parts []*Token
}

// Payloads returns the payload of every fragment in arrival order.
func (c Composite) Payloads() []any {
	out := make([]any, 0, len(c.Parts))
	for _, p := range c.Parts {
		out = append(out, p.Payload())
	}
	return out
}
