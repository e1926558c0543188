package models

// Shape is the closed set of claim kinds the engine materializes, keyed on
// (normalized context, type).
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeAgreeAction
	ShapeLegacyConfirmation
	ShapeGiveAction
	ShapeOffer
	ShapePlanAction
	ShapeProject
	ShapeTenure
	ShapeJoinAction
	ShapeOrganizationRole
	ShapeVoteAction
	ShapeRegisterAction
)

var shapeNames = map[Shape]string{
	ShapeUnknown:            "Unknown",
	ShapeAgreeAction:        "AgreeAction",
	ShapeLegacyConfirmation: "Confirmation",
	ShapeGiveAction:         "GiveAction",
	ShapeOffer:              "Offer",
	ShapePlanAction:         "PlanAction",
	ShapeProject:            "Project",
	ShapeTenure:             "Tenure",
	ShapeJoinAction:         "JoinAction",
	ShapeOrganizationRole:   "OrganizationRole",
	ShapeVoteAction:         "VoteAction",
	ShapeRegisterAction:     "RegisterAction",
}

func (s Shape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return "Unknown"
}

var schemaShapes = map[string]Shape{
	"AgreeAction":    ShapeAgreeAction,
	"GiveAction":     ShapeGiveAction,
	"Offer":          ShapeOffer,
	"PlanAction":     ShapePlanAction,
	"Project":        ShapeProject,
	"JoinAction":     ShapeJoinAction,
	"VoteAction":     ShapeVoteAction,
	"RegisterAction": ShapeRegisterAction,
}

// ShapeOf dispatches a document. context must already be normalized.
func ShapeOf(context, typ string, doc Doc) Shape {
	switch NormalizeContext(context) {
	case SchemaContext:
		if s, ok := schemaShapes[typ]; ok {
			return s
		}
		if typ == "Organization" && doc.Sub("member").Str("@type") == "OrganizationRole" {
			return ShapeOrganizationRole
		}
	case EndorserContext:
		switch typ {
		case "Confirmation":
			return ShapeLegacyConfirmation
		case "Tenure":
			return ShapeTenure
		}
	}
	return ShapeUnknown
}

// IsConfirmation reports whether the shape confirms other claims.
func (s Shape) IsConfirmation() bool {
	return s == ShapeAgreeAction || s == ShapeLegacyConfirmation
}

// RequiresExactMatch reports whether a confirmation of this shape must find
// an existing projection record by exact field equality.
func (s Shape) RequiresExactMatch() bool {
	switch s {
	case ShapeJoinAction, ShapeOrganizationRole, ShapeTenure:
		return true
	}
	return false
}

// ProjectionKind is the projection table a shape materializes into, or "".
func (s Shape) ProjectionKind() ProjectionKind {
	switch s {
	case ShapeGiveAction:
		return KindGive
	case ShapeOffer:
		return KindOffer
	case ShapePlanAction:
		return KindPlan
	case ShapeProject:
		return KindProject
	case ShapeTenure:
		return KindTenure
	case ShapeJoinAction:
		return KindAction
	case ShapeOrganizationRole:
		return KindOrgRole
	case ShapeVoteAction:
		return KindVote
	case ShapeRegisterAction:
		return KindRegistration
	}
	return ""
}

// AgentOf returns the DID recorded as authorized agent of a claim, used by
// the edit permission rule.
func AgentOf(s Shape, doc Doc) string {
	switch s {
	case ShapeOffer:
		return doc.Identifier("offeredBy")
	case ShapeTenure:
		return doc.Identifier("party")
	case ShapeOrganizationRole:
		return doc.Sub("member").Identifier("member")
	}
	return doc.Identifier("agent")
}
