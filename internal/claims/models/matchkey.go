package models

import (
	"strings"

	"endorser/pkg/canon"
)

// MatchKey is the exact-equality key of the shapes whose confirmations must
// find an existing record. defaultAgent fills an omitted agent/party, the way
// materialization does with the issuer.
func MatchKey(s Shape, doc Doc, defaultAgent string) (string, bool) {
	var fields map[string]any
	switch s {
	case ShapeJoinAction:
		agent := doc.Identifier("agent")
		if agent == "" {
			agent = defaultAgent
		}
		event := doc.Sub("event")
		fields = map[string]any{
			"agent":     agent,
			"orgName":   event.Sub("organizer").Str("name"),
			"eventName": event.Str("name"),
			"startTime": event.Str("startTime"),
		}
	case ShapeOrganizationRole:
		member := doc.Sub("member")
		fields = map[string]any{
			"orgName":   doc.Str("name"),
			"roleName":  member.Str("roleName"),
			"member":    member.Identifier("member"),
			"startDate": member.Str("startDate"),
			"endDate":   member.Str("endDate"),
		}
	case ShapeTenure:
		party := doc.Identifier("party")
		if party == "" {
			party = defaultAgent
		}
		fields = map[string]any{
			"party":   party,
			"polygon": strings.Join(strings.Fields(doc.Sub("spatialUnit").Sub("geo").Str("polygon")), " "),
		}
	default:
		return "", false
	}
	key, err := canon.ContentHash(fields)
	if err != nil {
		return "", false
	}
	return key, true
}
