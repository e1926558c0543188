package handler

import (
	"endorser/internal/claims/models"
	"endorser/internal/claims/service"
)

// IngestRequest is the body of POST /api/v2/claim.
type IngestRequest struct {
	JWTEncoded string `json:"jwtEncoded"`
}

// BatchRequest is the body of POST /api/v2/claims/batch.
type BatchRequest struct {
	JWTEncoded []string `json:"jwtEncoded"`
}

// BatchResponse lists one outcome per submitted token, in order.
type BatchResponse struct {
	Results []service.Outcome `json:"results"`
}

type ConfirmationsResponse struct {
	Confirmations []*models.Confirmation `json:"confirmations"`
}
