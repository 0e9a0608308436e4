package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// payloadEnvelope is the tagged-union wire format used for both on-disk
// chunk serialization and the HTTP API: {"type": <variant>,
// "data": <fields>}.
type payloadEnvelope struct {
	Type Label           `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayloadJSON renders a Payload as its tagged-union envelope.
func MarshalPayloadJSON(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("graph: marshal payload %s: %w", p.Label(), err)
	}
	return json.Marshal(payloadEnvelope{Type: p.Label(), Data: data})
}

// UnmarshalPayloadJSON parses a tagged-union envelope back into the
// concrete Payload variant named by its "type" field.
func UnmarshalPayloadJSON(raw []byte) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("graph: unmarshal payload envelope: %w", err)
	}

	var p Payload
	switch env.Type {
	case LabelText:
		p = &TextPayload{}
	case LabelLink:
		p = &LinkPayload{}
	case LabelDomain:
		p = &DomainPayload{}
	case LabelWebPage:
		p = &WebPagePayload{}
	case LabelTree:
		p = &TreePayload{}
	case LabelTableRow:
		p = &TableRowPayload{}
	case LabelProjectSettings:
		p = &ProjectSettingsPayload{}
	case LabelClassifierSettings:
		p = &ClassifierSettingsPayload{}
	case LabelConclusion:
		p = &ConclusionPayload{}
	case LabelNamedEntitiesToExtract:
		p = &NamedEntitiesToExtractPayload{}
	case LabelExtractedNamedEntities:
		p = &ExtractedNamedEntitiesPayload{}
	default:
		return nil, fmt.Errorf("graph: unknown payload variant %q", env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, p); err != nil {
			return nil, fmt.Errorf("graph: unmarshal %s payload: %w", env.Type, err)
		}
	}
	// Dereference back to the value type so callers get the same
	// concrete types returned by the payload constructors.
	switch v := p.(type) {
	case *TextPayload:
		return *v, nil
	case *LinkPayload:
		return *v, nil
	case *DomainPayload:
		return *v, nil
	case *WebPagePayload:
		return *v, nil
	case *TreePayload:
		return *v, nil
	case *TableRowPayload:
		return *v, nil
	case *ProjectSettingsPayload:
		return *v, nil
	case *ClassifierSettingsPayload:
		return *v, nil
	case *ConclusionPayload:
		return *v, nil
	case *NamedEntitiesToExtractPayload:
		return *v, nil
	case *ExtractedNamedEntitiesPayload:
		return *v, nil
	default:
		return p, nil
	}
}

// nodeItemWire is the on-disk/JSON shape of a NodeItem, with Payload
// flattened through its tagged-union envelope instead of relying on
// encoding/json's (lossy, for interfaces) default behavior.
type nodeItemWire struct {
	ID        NodeID          `json:"id"`
	Payload   payloadEnvelope `json:"payload"`
	Labels    []Label         `json:"labels"`
	Flags     Flags           `json:"flags"`
	WrittenAt string          `json:"written_at"`
}

// MarshalJSON implements json.Marshaler for NodeItem.
func (n NodeItem) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, err
	}
	wire := nodeItemWire{
		ID:        n.ID,
		Payload:   payloadEnvelope{Type: n.Payload.Label(), Data: data},
		Labels:    n.Labels,
		Flags:     n.Flags,
		WrittenAt: n.WrittenAt.Format(time.RFC3339Nano),
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler for NodeItem.
func (n *NodeItem) UnmarshalJSON(raw []byte) error {
	var wire nodeItemWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	envelopeBytes, err := json.Marshal(wire.Payload)
	if err != nil {
		return err
	}
	payload, err := UnmarshalPayloadJSON(envelopeBytes)
	if err != nil {
		return err
	}
	n.ID = wire.ID
	n.Payload = payload
	n.Labels = wire.Labels
	n.Flags = wire.Flags
	if wire.WrittenAt != "" {
		t, err := time.Parse(time.RFC3339Nano, wire.WrittenAt)
		if err != nil {
			return err
		}
		n.WrittenAt = t
	}
	return nil
}
