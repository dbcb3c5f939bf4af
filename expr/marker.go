package expr

import "encoding/json"

// MarkerOp names an update marker.
type MarkerOp string

const (
	OpInc      MarkerOp = "$inc"
	OpDec      MarkerOp = "$dec"
	OpPush     MarkerOp = "$push"
	OpPull     MarkerOp = "$pull"
	OpAddToSet MarkerOp = "$addToSet"
	OpDefault  MarkerOp = "$default"
)

// Marker is the resolved form of an update operator. The resolver never
// applies a marker; the effect handler that receives it decides what it
// means for its storage model.
type Marker struct {
	Op    MarkerOp
	Value any
}

// AsMarker reports whether v is a resolved marker.
func AsMarker(v any) (Marker, bool) {
	switch m := v.(type) {
	case Marker:
		return m, true
	case *Marker:
		if m != nil {
			return *m, true
		}
	}
	return Marker{}, false
}

// Items returns the marker payload as a list. A sequence payload is returned
// as is; any other payload is a single item.
func (m Marker) Items() []any {
	if items, ok := m.Value.([]any); ok {
		return items
	}
	return []any{m.Value}
}

// MarshalJSON encodes the marker back into its wire form, e.g. {"$inc": 1}.
func (m Marker) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{string(m.Op): m.Value})
}

func (m Marker) String() string {
	b, err := m.MarshalJSON()
	if err != nil {
		return string(m.Op)
	}
	return string(b)
}
