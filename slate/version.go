// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/wire"
)

// Version identifies a slate wire schema.
type Version uint16

const (
	// V2 is the legacy schema.  It predates slate expiry and payment
	// proofs, so documents carrying either cannot be expressed in it.
	V2 Version = 2

	// V3 is the current schema.
	V3 Version = 3

	// CurrentVersion is the schema new slates are created under.
	CurrentVersion = V3

	// MinVersion is the oldest schema this build can translate.
	MinVersion = V2
)

// String returns the version as its wire tag.
func (v Version) String() string {
	return fmt.Sprintf("V%d", uint16(v))
}

var (
	// ErrUnsupportedVersion is returned when a document carries a
	// schema version outside the translatable range.
	ErrUnsupportedVersion = errors.New("unsupported slate version")

	// ErrLossyDowngrade is returned when a slate carries fields the
	// requested older schema has no representation for.
	ErrLossyDowngrade = errors.New("slate cannot be represented in requested version")
)

// SlateV3 is the version three wire document.  Unset expiry and
// payment proof serialize as JSON null.
type SlateV3 struct {
	VersionInfo     VersionCompatInfo `json:"version_info"`
	NumParticipants uint64            `json:"num_participants"`
	ID              uuid.UUID         `json:"id"`
	Tx              *wire.Transaction `json:"tx"`
	Amount          mwutil.Amount     `json:"amount"`
	Fee             mwutil.Amount     `json:"fee"`
	Height          uint64            `json:"height,string"`
	LockHeight      uint64            `json:"lock_height,string"`
	TTLCutoffHeight *uint64           `json:"ttl_cutoff_height,string"`
	ParticipantData []ParticipantData `json:"participant_data"`
	PaymentProof    *PaymentProofInfo `json:"payment_proof"`
}

// SlateV2 is the version two wire document.  It has no expiry or
// payment proof fields.
type SlateV2 struct {
	VersionInfo     VersionCompatInfo `json:"version_info"`
	NumParticipants uint64            `json:"num_participants"`
	ID              uuid.UUID         `json:"id"`
	Tx              *wire.Transaction `json:"tx"`
	Amount          mwutil.Amount     `json:"amount"`
	Fee             mwutil.Amount     `json:"fee"`
	Height          uint64            `json:"height,string"`
	LockHeight      uint64            `json:"lock_height,string"`
	ParticipantData []ParticipantData `json:"participant_data"`
}

// VersionedSlate wraps a slate with an explicit schema version so
// wallets running different builds can exchange documents.  Exactly
// one of the version documents is populated.
type VersionedSlate struct {
	version Version
	v3      *SlateV3
	v2      *SlateV2
}

// Version returns the wire schema of the wrapped document.
func (vs *VersionedSlate) Version() Version {
	return vs.version
}

// NewVersionedSlate translates a slate into the requested wire schema.
// Translation preserves every field the signing protocol inspects;
// requesting a schema that cannot carry the slate's contents fails
// with ErrLossyDowngrade rather than dropping fields.
func NewVersionedSlate(s *Slate, target Version) (*VersionedSlate, error) {
	switch target {
	case V3:
		v3 := &SlateV3{
			VersionInfo:     s.VersionInfo,
			NumParticipants: s.NumParticipants,
			ID:              s.ID,
			Tx:              s.Tx,
			Amount:          s.Amount,
			Fee:             s.Fee,
			Height:          s.Height,
			LockHeight:      s.LockHeight,
			ParticipantData: s.ParticipantData,
			PaymentProof:    s.PaymentProof,
		}
		v3.VersionInfo.Version = uint16(V3)
		if s.TTLCutoffHeight != 0 {
			ttl := s.TTLCutoffHeight
			v3.TTLCutoffHeight = &ttl
		}
		return &VersionedSlate{version: V3, v3: v3}, nil

	case V2:
		if s.TTLCutoffHeight != 0 {
			return nil, fmt.Errorf("%w: V2 cannot carry a ttl cutoff",
				ErrLossyDowngrade)
		}
		if s.PaymentProof != nil {
			return nil, fmt.Errorf("%w: V2 cannot carry a payment proof",
				ErrLossyDowngrade)
		}
		v2 := &SlateV2{
			VersionInfo:     s.VersionInfo,
			NumParticipants: s.NumParticipants,
			ID:              s.ID,
			Tx:              s.Tx,
			Amount:          s.Amount,
			Fee:             s.Fee,
			Height:          s.Height,
			LockHeight:      s.LockHeight,
			ParticipantData: s.ParticipantData,
		}
		v2.VersionInfo.Version = uint16(V2)
		return &VersionedSlate{version: V2, v2: v2}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion,
			uint16(target))
	}
}

// Slate translates the wire document back into a slate.  Upgrading
// from an older schema fills the missing fields with their unset
// values and keeps the document's original version metadata.
func (vs *VersionedSlate) Slate() (*Slate, error) {
	switch vs.version {
	case V3:
		s := &Slate{
			VersionInfo:     vs.v3.VersionInfo,
			NumParticipants: vs.v3.NumParticipants,
			ID:              vs.v3.ID,
			Tx:              vs.v3.Tx,
			Amount:          vs.v3.Amount,
			Fee:             vs.v3.Fee,
			Height:          vs.v3.Height,
			LockHeight:      vs.v3.LockHeight,
			ParticipantData: vs.v3.ParticipantData,
			PaymentProof:    vs.v3.PaymentProof,
		}
		if vs.v3.TTLCutoffHeight != nil {
			s.TTLCutoffHeight = *vs.v3.TTLCutoffHeight
		}
		return s, nil

	case V2:
		return &Slate{
			VersionInfo:     vs.v2.VersionInfo,
			NumParticipants: vs.v2.NumParticipants,
			ID:              vs.v2.ID,
			Tx:              vs.v2.Tx,
			Amount:          vs.v2.Amount,
			Fee:             vs.v2.Fee,
			Height:          vs.v2.Height,
			LockHeight:      vs.v2.LockHeight,
			ParticipantData: vs.v2.ParticipantData,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion,
			uint16(vs.version))
	}
}

// MarshalJSON implements json.Marshaler, emitting the wrapped wire
// document directly.
func (vs *VersionedSlate) MarshalJSON() ([]byte, error) {
	switch vs.version {
	case V3:
		return json.Marshal(vs.v3)
	case V2:
		return json.Marshal(vs.v2)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion,
		uint16(vs.version))
}

// UnmarshalJSON implements json.Unmarshaler.  The schema is sniffed
// from the version_info tag before the document is decoded.
func (vs *VersionedSlate) UnmarshalJSON(data []byte) error {
	var probe struct {
		VersionInfo struct {
			Version uint16 `json:"version"`
		} `json:"version_info"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("malformed slate: %w", err)
	}

	switch Version(probe.VersionInfo.Version) {
	case V3:
		v3 := new(SlateV3)
		if err := json.Unmarshal(data, v3); err != nil {
			return err
		}
		*vs = VersionedSlate{version: V3, v3: v3}
	case V2:
		v2 := new(SlateV2)
		if err := json.Unmarshal(data, v2); err != nil {
			return err
		}
		*vs = VersionedSlate{version: V2, v2: v2}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion,
			probe.VersionInfo.Version)
	}
	return nil
}

// ParseVersionedSlate decodes a slate wire document of any supported
// schema version.
func ParseVersionedSlate(data []byte) (*VersionedSlate, error) {
	vs := new(VersionedSlate)
	if err := vs.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return vs, nil
}

// Marshal serializes the slate in the current schema version.
func Marshal(s *Slate) ([]byte, error) {
	vs, err := NewVersionedSlate(s, CurrentVersion)
	if err != nil {
		return nil, err
	}
	return json.Marshal(vs)
}

// Unmarshal decodes a slate wire document of any supported schema and
// translates it to the in-memory form.
func Unmarshal(data []byte) (*Slate, error) {
	vs, err := ParseVersionedSlate(data)
	if err != nil {
		return nil, err
	}
	return vs.Slate()
}
