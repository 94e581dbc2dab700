package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCPO  Role = "CPO"
	RoleEMSP Role = "EMSP"
)

type CredentialStatus string

const (
	StatusAllowed CredentialStatus = "ALLOWED"
	StatusBlocked CredentialStatus = "BLOCKED"
)

// PartyIdentity is the (country code, party id) pair of an organisation, tagged with its role.
type PartyIdentity struct {
	CountryCode string `json:"country_code" yaml:"country_code"`
	PartyID     string `json:"party_id" yaml:"party_id"`
	Role        Role   `json:"role" yaml:"role"`
}

func NewPartyIdentity(countryCode, partyID string, role Role) PartyIdentity {
	return PartyIdentity{CountryCode: countryCode, PartyID: partyID, Role: role}
}

// Key is the normalized map key of the identity. The role is not part of it.
func (p PartyIdentity) Key() string {
	return strings.ToUpper(p.CountryCode) + "*" + strings.ToUpper(p.PartyID)
}

// Equal compares country code and party id case-insensitively.
func (p PartyIdentity) Equal(o PartyIdentity) bool {
	return strings.EqualFold(p.CountryCode, o.CountryCode) && strings.EqualFold(p.PartyID, o.PartyID)
}

func (p PartyIdentity) IsZero() bool {
	return p.CountryCode == "" && p.PartyID == ""
}

func (p PartyIdentity) String() string {
	if p.Role == "" {
		return p.Key()
	}
	return p.Key() + " (" + string(p.Role) + ")"
}

// AccessCredential is a token a remote party presents when calling us.
type AccessCredential struct {
	Token   string           `json:"token" yaml:"token"`
	Grantor PartyIdentity    `json:"grantor" yaml:"grantor"`
	Role    Role             `json:"role" yaml:"role"`
	Status  CredentialStatus `json:"status" yaml:"status"`
}

func (c AccessCredential) Allowed() bool {
	return c.Status == StatusAllowed
}

// OutgoingCredential is the token we present when calling a remote party.
type OutgoingCredential struct {
	Token           string           `json:"token" yaml:"token"`
	VersionsURL     string           `json:"versions_url" yaml:"versions_url"`
	SelectedVersion string           `json:"selected_version,omitempty" yaml:"selected_version"`
	Status          CredentialStatus `json:"status" yaml:"status"`
}

func (c OutgoingCredential) Usable() bool {
	return c.Status == StatusAllowed && c.Token != ""
}

type ModuleID string

const (
	ModuleCredentials ModuleID = "credentials"
	ModuleLocations   ModuleID = "locations"
	ModuleTariffs     ModuleID = "tariffs"
	ModuleSessions    ModuleID = "sessions"
	ModuleCDRs        ModuleID = "cdrs"
	ModuleTokens      ModuleID = "tokens"
	ModuleCommands    ModuleID = "commands"
)

type InterfaceRole string

const (
	InterfaceSender   InterfaceRole = "SENDER"
	InterfaceReceiver InterfaceRole = "RECEIVER"
)

type Endpoint struct {
	Identifier ModuleID      `json:"identifier" yaml:"identifier"`
	Role       InterfaceRole `json:"role" yaml:"role"`
	URL        string        `json:"url" yaml:"url"`
}

// VersionInfo is one entry of a versions listing.
type VersionInfo struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

type VersionEndpoints struct {
	Version   string     `json:"version" yaml:"version"`
	URL       string     `json:"url,omitempty" yaml:"url"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// RemoteParty is the configuration we hold about one counterparty.
type RemoteParty struct {
	ID           PartyIdentity        `json:"id" yaml:"id"`
	BusinessName string               `json:"business_name,omitempty" yaml:"business_name"`
	Status       CredentialStatus     `json:"status" yaml:"status"`
	Incoming     []AccessCredential   `json:"incoming" yaml:"incoming"`
	Outgoing     []OutgoingCredential `json:"outgoing" yaml:"outgoing"`
	Versions     []VersionEndpoints   `json:"versions,omitempty" yaml:"versions"`
	LastUpdated  time.Time            `json:"last_updated" yaml:"-"`
}

// Allowed reports whether the party itself is not blocked. An empty status counts as allowed.
func (p RemoteParty) Allowed() bool {
	return p.Status == "" || p.Status == StatusAllowed
}

// UsableOutgoing returns the first outgoing credential we can call the party with.
func (p RemoteParty) UsableOutgoing() (OutgoingCredential, bool) {
	if !p.Allowed() {
		return OutgoingCredential{}, false
	}
	for _, c := range p.Outgoing {
		if c.Usable() {
			return c, true
		}
	}
	return OutgoingCredential{}, false
}

// FindEndpoint looks up the URL advertised for module in version. An empty version picks the
// first advertised version. Receiver interfaces win over sender interfaces.
func (p RemoteParty) FindEndpoint(version string, module ModuleID) (Endpoint, bool) {
	for _, v := range p.Versions {
		if version != "" && v.Version != version {
			continue
		}
		var fallback *Endpoint
		for i := range v.Endpoints {
			ep := v.Endpoints[i]
			if ep.Identifier != module {
				continue
			}
			if ep.Role == InterfaceReceiver || ep.Role == "" {
				return ep, true
			}
			if fallback == nil {
				fallback = &ep
			}
		}
		if fallback != nil {
			return *fallback, true
		}
		if version != "" {
			return Endpoint{}, false
		}
	}
	return Endpoint{}, false
}

// Clone returns a deep copy so stores never share slices with callers.
func (p RemoteParty) Clone() RemoteParty {
	out := p
	out.Incoming = append([]AccessCredential(nil), p.Incoming...)
	out.Outgoing = append([]OutgoingCredential(nil), p.Outgoing...)
	out.Versions = make([]VersionEndpoints, 0, len(p.Versions))
	for _, v := range p.Versions {
		v.Endpoints = append([]Endpoint(nil), v.Endpoints...)
		out.Versions = append(out.Versions, v)
	}
	return out
}

// Normalize fills the grantor of incoming credentials and defaults their role to the party role.
func (p *RemoteParty) Normalize() {
	for i := range p.Incoming {
		if p.Incoming[i].Grantor.IsZero() {
			p.Incoming[i].Grantor = p.ID
		}
		if p.Incoming[i].Role == "" {
			p.Incoming[i].Role = p.ID.Role
		}
		if p.Incoming[i].Status == "" {
			p.Incoming[i].Status = StatusAllowed
		}
	}
	for i := range p.Outgoing {
		if p.Outgoing[i].Status == "" {
			p.Outgoing[i].Status = StatusAllowed
		}
	}
	if p.Status == "" {
		p.Status = StatusAllowed
	}
}
