// Package chain links every accepted claim into tamper-evident hash chains:
// one global chain, one chain per issuer, and nonced variants of both in
// which DIDs are blinded with the row's nonce so the chains can be published
// without revealing who took part.
//
// Build is a pure function of an explicit seed and the rows to link, so a
// run can be repeated or resumed and always yields the same values.
package chain

import (
	"encoding/json"
	"fmt"
	"maps"

	"endorser/internal/claims/models"
	"endorser/pkg/canon"
)

// IssuerLink is the last issuer chain value and its nonced counterpart.
type IssuerLink struct {
	Chain  string
	Nonced string
}

// Seed is the chain state before the rows being linked. The zero Seed
// starts a new chain. Position is the position of the last linked row.
type Seed struct {
	Position     int64
	Global       string
	NoncedGlobal string
	Issuers      map[string]IssuerLink
}

// Clone returns a copy that shares nothing with s.
func (s Seed) Clone() Seed {
	out := s
	out.Issuers = maps.Clone(s.Issuers)
	if out.Issuers == nil {
		out.Issuers = map[string]IssuerLink{}
	}
	return out
}

// Link is the chain values computed for one row.
type Link struct {
	RowID  string
	Seq    int64
	Issuer string
	Values models.ChainValues
}

// Build links rows after seed in the order given, assigning consecutive
// positions. It returns the links and the seed for the next batch; seed
// itself is not modified.
func Build(seed Seed, rows []*models.ClaimRow) ([]Link, Seed, error) {
	next := seed.Clone()
	links := make([]Link, 0, len(rows))
	for _, row := range rows {
		values, err := link(&next, row)
		if err != nil {
			return nil, seed, err
		}
		links = append(links, Link{RowID: row.ID, Seq: row.Seq, Issuer: row.Issuer, Values: values})
	}
	return links, next, nil
}

func link(seed *Seed, row *models.ClaimRow) (models.ChainValues, error) {
	body, err := canon.Canonicalize(row.Claim)
	if err != nil {
		return models.ChainValues{}, fmt.Errorf("canonicalize claim %s: %w", row.ID, err)
	}
	nonced, err := noncedClaim(row)
	if err != nil {
		return models.ChainValues{}, err
	}
	claimHash := canon.Digest(body)
	noncedHash := canon.Digest(nonced)

	prev := seed.Issuers[row.Issuer]
	v := models.ChainValues{
		Position:     seed.Position + 1,
		Global:       step(seed.Global, claimHash),
		Issuer:       step(prev.Chain, claimHash),
		NoncedHash:   noncedHash,
		NoncedGlobal: step(seed.NoncedGlobal, noncedHash),
		NoncedIssuer: step(prev.Nonced, noncedHash),
	}
	seed.Position = v.Position
	seed.Global = v.Global
	seed.NoncedGlobal = v.NoncedGlobal
	seed.Issuers[row.Issuer] = IssuerLink{Chain: v.Issuer, Nonced: v.NoncedIssuer}
	return v, nil
}

// step is one step of the recurrence chain[i] = Digest(chain[i-1] + hash[i]).
func step(prev, hash string) string {
	return canon.DigestString(prev + hash)
}

// noncedClaim is the canonical claim with every DID replaced by
// HexDigest(did + nonce).
func noncedClaim(row *models.ClaimRow) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(row.Claim, &doc); err != nil {
		return nil, fmt.Errorf("decode claim %s: %w", row.ID, err)
	}
	blinded := models.ReplaceDIDs(doc, func(did string) string {
		return canon.HexDigest([]byte(did + row.HashNonce))
	})
	out, err := canon.Canonicalize(blinded)
	if err != nil {
		return nil, fmt.Errorf("canonicalize nonced claim %s: %w", row.ID, err)
	}
	return out, nil
}

// Mismatch names the first row whose stored values differ from the
// recomputed ones.
type Mismatch struct {
	RowID string `json:"rowId"`
	Seq   int64  `json:"seq"`
	Field string `json:"field"`
}

// Verify recomputes the chain over chained rows, in position order, after
// seed and reports the first row whose stored values differ, or nil when all
// match. The returned seed continues the chain after rows.
func Verify(seed Seed, rows []*models.ClaimRow) (*Mismatch, Seed, error) {
	links, next, err := Build(seed, rows)
	if err != nil {
		return nil, seed, err
	}
	for i, l := range links {
		stored := rows[i].Chain
		if stored == nil {
			return &Mismatch{RowID: l.RowID, Seq: l.Seq, Field: "unchained"}, seed, nil
		}
		if field := diff(*stored, l.Values); field != "" {
			return &Mismatch{RowID: l.RowID, Seq: l.Seq, Field: field}, seed, nil
		}
	}
	return nil, next, nil
}

func diff(stored, want models.ChainValues) string {
	switch {
	case stored.Position != want.Position:
		return "position"
	case stored.Global != want.Global:
		return "global"
	case stored.Issuer != want.Issuer:
		return "issuer"
	case stored.NoncedHash != want.NoncedHash:
		return "noncedHash"
	case stored.NoncedGlobal != want.NoncedGlobal:
		return "noncedGlobal"
	case stored.NoncedIssuer != want.NoncedIssuer:
		return "noncedIssuer"
	}
	return ""
}
