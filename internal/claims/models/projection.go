package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProjectionKind names one projection table.
type ProjectionKind string

const (
	KindGive         ProjectionKind = "give"
	KindOffer        ProjectionKind = "offer"
	KindPlan         ProjectionKind = "plan"
	KindProject      ProjectionKind = "project"
	KindTenure       ProjectionKind = "tenure"
	KindAction       ProjectionKind = "action"
	KindOrgRole      ProjectionKind = "orgrole"
	KindVote         ProjectionKind = "vote"
	KindRegistration ProjectionKind = "registration"
)

// ParseProjectionKind validates a kind from a URL or column.
func ParseProjectionKind(s string) (ProjectionKind, bool) {
	switch k := ProjectionKind(s); k {
	case KindGive, KindOffer, KindPlan, KindProject, KindTenure, KindAction, KindOrgRole, KindVote:
		return k, true
	}
	return "", false
}

// Header is common to every projection. A projection is keyed by
// (Kind, Handle); ClaimRowID is the latest revision.
type Header struct {
	Kind           ProjectionKind `json:"kind"`
	Handle         string         `json:"handle"`
	ClaimRowID     string         `json:"claimRowId"`
	Issuer         string         `json:"issuer"`
	IssuedAt       time.Time      `json:"issuedAt"`
	MatchKey       string         `json:"matchKey,omitempty"`
	ConfirmedCount int            `json:"confirmedCount"`
}

func (h *Header) Head() *Header { return h }

// Projection is any materialized record.
type Projection interface {
	Head() *Header
}

// Give records a GiveAction. Amount is what the giver asserted;
// AmountConfirmed only grows when the recipient (or the plan authority)
// stands behind it.
type Give struct {
	Header
	Agent                 string  `json:"agent"`
	Recipient             string  `json:"recipient,omitempty"`
	Description           string  `json:"description,omitempty"`
	Unit                  string  `json:"unit,omitempty"`
	Amount                float64 `json:"amount"`
	AmountConfirmed       float64 `json:"amountConfirmed"`
	FulfillsHandle        string  `json:"fulfillsHandle,omitempty"`
	FulfillsType          string  `json:"fulfillsType,omitempty"`
	FulfillsPlanHandle    string  `json:"fulfillsPlanHandle,omitempty"`
	FulfillsLinkConfirmed bool    `json:"fulfillsLinkConfirmed"`
}

// Offer records an Offer.
type Offer struct {
	Header
	OfferedBy          string     `json:"offeredBy"`
	Recipient          string     `json:"recipient,omitempty"`
	Description        string     `json:"description,omitempty"`
	Unit               string     `json:"unit,omitempty"`
	Amount             float64    `json:"amount"`
	AmountConfirmed    float64    `json:"amountConfirmed"`
	ItemHandle         string     `json:"itemHandle,omitempty"`
	FulfillsPlanHandle string     `json:"fulfillsPlanHandle,omitempty"`
	ValidThrough       *time.Time `json:"validThrough,omitempty"`
}

// PlanDetails are shared by plans and projects.
type PlanDetails struct {
	Agent              string     `json:"agent,omitempty"`
	Name               string     `json:"name,omitempty"`
	Description        string     `json:"description,omitempty"`
	URL                string     `json:"url,omitempty"`
	Image              string     `json:"image,omitempty"`
	StartTime          *time.Time `json:"startTime,omitempty"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	FulfillsHandle     string     `json:"fulfillsHandle,omitempty"`
	FulfillsPlanHandle string     `json:"fulfillsPlanHandle,omitempty"`
}

type Plan struct {
	Header
	PlanDetails
}

type Project struct {
	Header
	PlanDetails
}

// BBox is a geographic bounding box.
type BBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

type Tenure struct {
	Header
	Party   string `json:"party"`
	Polygon string `json:"polygon,omitempty"`
	BBox    *BBox  `json:"bbox,omitempty"`
}

// Action records attendance (JoinAction) at an event.
type Action struct {
	Header
	Agent          string `json:"agent"`
	EventOrgName   string `json:"eventOrgName,omitempty"`
	EventName      string `json:"eventName,omitempty"`
	EventStartTime string `json:"eventStartTime,omitempty"`
}

type OrgRole struct {
	Header
	OrgName   string `json:"orgName"`
	RoleName  string `json:"roleName"`
	Member    string `json:"member"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type Vote struct {
	Header
	Agent          string `json:"agent"`
	ActionOption   string `json:"actionOption,omitempty"`
	Candidate      string `json:"candidate,omitempty"`
	EventName      string `json:"eventName,omitempty"`
	EventStartTime string `json:"eventStartTime,omitempty"`
}

// NewProjection returns an empty projection of kind.
func NewProjection(kind ProjectionKind) (Projection, error) {
	switch kind {
	case KindGive:
		return &Give{}, nil
	case KindOffer:
		return &Offer{}, nil
	case KindPlan:
		return &Plan{}, nil
	case KindProject:
		return &Project{}, nil
	case KindTenure:
		return &Tenure{}, nil
	case KindAction:
		return &Action{}, nil
	case KindOrgRole:
		return &OrgRole{}, nil
	case KindVote:
		return &Vote{}, nil
	}
	return nil, fmt.Errorf("unknown projection kind %q", kind)
}

// DecodeProjection rebuilds a projection from its stored JSON.
func DecodeProjection(kind ProjectionKind, data []byte) (Projection, error) {
	p, err := NewProjection(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s projection: %w", kind, err)
	}
	return p, nil
}

// Provider is one entry of the provider list of a give or plan.
type Provider struct {
	Kind           ProjectionKind `json:"kind"`
	Handle         string         `json:"handle"`
	ProviderHandle string         `json:"providerHandle"`
	ProviderRowID  string         `json:"providerRowId,omitempty"`
}
