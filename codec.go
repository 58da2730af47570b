package layerfs

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// The serialized form of a path specification is an ordered list of
// per-layer attribute maps, outermost layer first, each tagged with its
// type indicator. It round-trips losslessly and is the basis of persisted
// or cross-process references to a nested object.

// layerDTO is the wire shape of one layer. Optional attributes use pointer
// fields so absent and zero are distinguishable.
type layerDTO struct {
	Type        TypeIndicator     `json:"type"`
	Location    string            `json:"location,omitempty"`
	Identifier  string            `json:"identifier,omitempty"`
	Method      CompressionMethod `json:"method,omitempty"`
	PartIndex   *int              `json:"part_index,omitempty"`
	StartOffset *int64            `json:"start_offset,omitempty"`
}

// cborEncMode uses Core Deterministic Encoding so the same chain always
// serializes to identical bytes; cborDecMode accepts standard CBOR and
// ignores unknown fields for forward compatibility.
var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("layerfs: CBOR encoder initialization failed: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("layerfs: CBOR decoder initialization failed: " + err.Error())
	}
}

func (s *PathSpec) dump() []layerDTO {
	layers := s.chain()
	dtos := make([]layerDTO, 0, len(layers))
	for _, layer := range layers {
		dtos = append(dtos, layerDTO{
			Type:        layer.typ,
			Location:    layer.location,
			Identifier:  layer.identifier,
			Method:      layer.method,
			PartIndex:   layer.partIndex,
			StartOffset: layer.startOffset,
		})
	}
	return dtos
}

// load reconstructs a chain from its wire shape, re-running constructor
// validation on every layer.
func load(dtos []layerDTO) (*PathSpec, error) {
	if len(dtos) == 0 {
		return nil, fmt.Errorf("%w: empty layer list", ErrInvalidPathSpec)
	}
	var parent *PathSpec
	for _, dto := range dtos {
		spec, err := NewPathSpec(dto.Type, parent, Attrs{
			Location:    dto.Location,
			Identifier:  dto.Identifier,
			Method:      dto.Method,
			PartIndex:   dto.PartIndex,
			StartOffset: dto.StartOffset,
		})
		if err != nil {
			return nil, err
		}
		parent = spec
	}
	return parent, nil
}

// MarshalJSON encodes the chain as a JSON array of layer maps, outermost
// layer first.
func (s *PathSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.dump())
}

// UnmarshalJSON decodes a JSON layer array, validating every layer's
// kind/parent combination.
func (s *PathSpec) UnmarshalJSON(data []byte) error {
	var dtos []layerDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return err
	}
	spec, err := load(dtos)
	if err != nil {
		return err
	}
	*s = *spec
	return nil
}

// MarshalCBOR encodes the chain as a deterministic CBOR array of layer
// maps, outermost layer first.
func (s *PathSpec) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(s.dump())
}

// UnmarshalCBOR decodes a CBOR layer array, validating every layer's
// kind/parent combination.
func (s *PathSpec) UnmarshalCBOR(data []byte) error {
	var dtos []layerDTO
	if err := cborDecMode.Unmarshal(data, &dtos); err != nil {
		return err
	}
	spec, err := load(dtos)
	if err != nil {
		return err
	}
	*s = *spec
	return nil
}
