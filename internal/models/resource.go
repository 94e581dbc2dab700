package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

type Kind string

const (
	KindLocation Kind = "locations"
	KindTariff   Kind = "tariffs"
	KindSession  Kind = "sessions"
	KindCDR      Kind = "cdrs"
	KindToken    Kind = "tokens"
)

// Identity is the composite key of a resource: owner country code, owner party id and the
// resource id (or token uid).
type Identity struct {
	CountryCode string
	PartyID     string
	ID          string
}

func NewIdentity(countryCode, partyID, id string) Identity {
	return Identity{CountryCode: countryCode, PartyID: partyID, ID: id}
}

func (i Identity) Key() string {
	return strings.ToUpper(i.CountryCode) + "*" + strings.ToUpper(i.PartyID) + "*" + i.ID
}

func (i Identity) Party(role Role) PartyIdentity {
	return PartyIdentity{CountryCode: i.CountryCode, PartyID: i.PartyID, Role: role}
}

// Resource is anything the resource store can hold.
type Resource interface {
	Identity() Identity
	Owner() PartyIdentity
	Updated() time.Time
}

// Syncable is a resource kind the sync protocol can PUT and PATCH.
type Syncable[T any] interface {
	Resource
	Validate() error
	// WithIdentity fills empty identity fields and rejects conflicting ones.
	WithIdentity(id Identity) (T, error)
	// Stamp returns a copy carrying the given last-updated timestamp.
	Stamp(t time.Time) T
	// Patch overwrites every field present in raw and leaves absent fields untouched.
	Patch(raw []byte) (T, error)
}

// ETag fingerprints the serialized form of v. Equal payloads give equal tags.
func ETag(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("etag: %w", err)
	}
	sum := sha256.Sum256(raw)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

func mergeIdentity(countryCode, partyID, id *string, want Identity) error {
	if *countryCode == "" {
		*countryCode = want.CountryCode
	} else if !strings.EqualFold(*countryCode, want.CountryCode) {
		return fmt.Errorf("%w: country_code %q does not match %q", ErrIdentityMismatch, *countryCode, want.CountryCode)
	}
	if *partyID == "" {
		*partyID = want.PartyID
	} else if !strings.EqualFold(*partyID, want.PartyID) {
		return fmt.Errorf("%w: party_id %q does not match %q", ErrIdentityMismatch, *partyID, want.PartyID)
	}
	if *id == "" {
		*id = want.ID
	} else if *id != want.ID {
		return fmt.Errorf("%w: id %q does not match %q", ErrIdentityMismatch, *id, want.ID)
	}
	return nil
}

// patchFields decodes the JSON object raw and assigns every present member to the target
// registered under its name. Targets must be pointers. Each member is decoded into a fresh
// value so slices and maps of the original are never written through.
func patchFields(raw []byte, targets map[string]any) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return Invalid("patch body: %v", err)
	}
	if members == nil {
		return Invalid("patch body must be a JSON object")
	}
	for name, value := range members {
		target, ok := targets[name]
		if !ok {
			return Invalid("unknown field %q", name)
		}
		ptr := reflect.ValueOf(target)
		fresh := reflect.New(ptr.Elem().Type())
		if err := json.Unmarshal(value, fresh.Interface()); err != nil {
			return Invalid("field %q: %v", name, err)
		}
		ptr.Elem().Set(fresh.Elem())
	}
	return nil
}

// identityTargets registers the identity members of a patch against scratch copies so a
// patch may repeat, but not change, the identity.
func identityTargets(targets map[string]any, idName string, cur Identity) func() error {
	cc, pid, id := cur.CountryCode, cur.PartyID, cur.ID
	targets["country_code"] = &cc
	targets["party_id"] = &pid
	targets[idName] = &id
	return func() error {
		if !strings.EqualFold(cc, cur.CountryCode) || !strings.EqualFold(pid, cur.PartyID) || id != cur.ID {
			return fmt.Errorf("%w: patch must not change the resource identity", ErrIdentityMismatch)
		}
		return nil
	}
}

type DisplayText struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

type Price struct {
	ExclVAT float64  `json:"excl_vat"`
	InclVAT *float64 `json:"incl_vat,omitempty"`
}

type GeoLocation struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}
