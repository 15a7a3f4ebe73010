package catalogs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Archetype is the discrete piece category used as the policy alphabet.
type Archetype uint8

const (
	ArchetypeUnknown Archetype = iota
	Straight1
	Straight2
	Straight3
	CurveLeft
	CurveRight
)

var archetypeNames = map[Archetype]string{
	Straight1:  "STRAIGHT_1",
	Straight2:  "STRAIGHT_2",
	Straight3:  "STRAIGHT_3",
	CurveLeft:  "CURVE_LEFT",
	CurveRight: "CURVE_RIGHT",
}

// AllArchetypes in canonical order.
var AllArchetypes = []Archetype{Straight1, Straight2, Straight3, CurveLeft, CurveRight}

func (a Archetype) String() string {
	if s, ok := archetypeNames[a]; ok {
		return s
	}
	return "UNKNOWN"
}

func (a Archetype) IsStraight() bool { return a == Straight1 || a == Straight2 || a == Straight3 }
func (a Archetype) IsCurve() bool    { return a == CurveLeft || a == CurveRight }

// NextStraight is the successor in the S1 -> S2 -> S3 -> S1 rotation.
func (a Archetype) NextStraight() Archetype {
	switch a {
	case Straight1:
		return Straight2
	case Straight2:
		return Straight3
	case Straight3:
		return Straight1
	}
	return ArchetypeUnknown
}

// Opposite returns the other curve direction.
func (a Archetype) Opposite() Archetype {
	switch a {
	case CurveLeft:
		return CurveRight
	case CurveRight:
		return CurveLeft
	}
	return ArchetypeUnknown
}

func ParseArchetype(s string) (Archetype, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for a, name := range archetypeNames {
		if name == u {
			return a, nil
		}
	}
	return ArchetypeUnknown, fmt.Errorf("unknown archetype %q", s)
}

func (a Archetype) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Archetype) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseArchetype(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// JSONSchema describes the wire form used by MarshalJSON.
func (Archetype) JSONSchema() *jsonschema.Schema {
	enum := make([]interface{}, 0, len(AllArchetypes))
	for _, a := range AllArchetypes {
		enum = append(enum, a.String())
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}
