// Validation conclusions per ETSI EN 319 102-1.

package ades

import (
	"fmt"
)

// Message is a keyed diagnostic attached to a conclusion.
type Message struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Conclusion is the outcome of one validation unit. The zero value is not a
// legal conclusion; use Passed, Indeterminate or Invalid.
type Conclusion struct {
	Indication    Indication    `json:"indication"`
	SubIndication SubIndication `json:"subIndication,omitempty"`
	Errors        []Message     `json:"errors,omitempty"`
	Warnings      []Message     `json:"warnings,omitempty"`
	Infos         []Message     `json:"infos,omitempty"`
}

// Passed returns a VALID conclusion.
func Passed() *Conclusion {
	return &Conclusion{Indication: IndicationValid}
}

// Indeterminate returns an INDETERMINATE conclusion with the given reason.
func Indeterminate(sub SubIndication) *Conclusion {
	return &Conclusion{Indication: IndicationIndeterminate, SubIndication: sub}
}

// Invalid returns an INVALID conclusion with the given reason.
func Invalid(sub SubIndication) *Conclusion {
	return &Conclusion{Indication: IndicationInvalid, SubIndication: sub}
}

// AddError adds an error to the conclusion.
func (c *Conclusion) AddError(key, value string) *Conclusion {
	c.Errors = append(c.Errors, Message{Key: key, Value: value})
	return c
}

// AddWarning adds a warning to the conclusion.
func (c *Conclusion) AddWarning(key, value string) *Conclusion {
	c.Warnings = append(c.Warnings, Message{Key: key, Value: value})
	return c
}

// AddInfo adds information to the conclusion.
func (c *Conclusion) AddInfo(key, value string) *Conclusion {
	c.Infos = append(c.Infos, Message{Key: key, Value: value})
	return c
}

// IsValid returns true if the indication is VALID.
func (c *Conclusion) IsValid() bool {
	return c != nil && c.Indication == IndicationValid
}

// IsInvalid returns true if the indication is INVALID.
func (c *Conclusion) IsInvalid() bool {
	return c != nil && c.Indication == IndicationInvalid
}

// IsIndeterminate returns true if the indication is INDETERMINATE.
func (c *Conclusion) IsIndeterminate() bool {
	return c != nil && c.Indication == IndicationIndeterminate
}

// Copy returns a deep copy of the conclusion.
func (c *Conclusion) Copy() *Conclusion {
	if c == nil {
		return nil
	}
	out := &Conclusion{Indication: c.Indication, SubIndication: c.SubIndication}
	out.Errors = append([]Message(nil), c.Errors...)
	out.Warnings = append([]Message(nil), c.Warnings...)
	out.Infos = append([]Message(nil), c.Infos...)
	return out
}

// Validate checks that the conclusion is well formed: a known indication,
// and a sub-indication present iff the indication is not VALID.
func (c *Conclusion) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: missing conclusion", ErrUnknownIndication)
	}
	if !c.Indication.IsKnown() {
		return fmt.Errorf("%w: %q", ErrUnknownIndication, c.Indication)
	}
	if c.Indication == IndicationValid {
		if c.SubIndication != SubIndicationNone {
			return fmt.Errorf("VALID conclusion carries sub-indication %s", c.SubIndication)
		}
		return nil
	}
	if c.SubIndication == SubIndicationNone {
		return fmt.Errorf("%s conclusion without sub-indication", c.Indication)
	}
	if !c.SubIndication.IsKnown() {
		return fmt.Errorf("%w: %q", ErrUnknownSubIndication, c.SubIndication)
	}
	return nil
}

// String renders the conclusion as "INDICATION (SUB_INDICATION)".
func (c *Conclusion) String() string {
	if c == nil {
		return "<none>"
	}
	if c.SubIndication == SubIndicationNone {
		return string(c.Indication)
	}
	return fmt.Sprintf("%s (%s)", c.Indication, c.SubIndication)
}
