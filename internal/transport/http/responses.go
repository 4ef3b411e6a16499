package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"steward/internal/recon"
	dErrors "steward/pkg/domain-errors"
)

// WriteJSON writes a success payload.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError translates a domain error into the JSON error envelope. The
// message always names the specific record involved; operator diagnosis
// depends on it.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": dErrors.MessageOf(err),
	})
}

// inconsistencyDTO is the wire shape of a scan finding. The same shape comes
// back on repair requests, so a repair operates on the original scan item's
// fields rather than a fresh re-check.
type inconsistencyDTO struct {
	Kind          string   `json:"kind"`
	Severity      string   `json:"severity"`
	Email         string   `json:"email"`
	Details       string   `json:"details"`
	IdentityID    string   `json:"identity_id,omitempty"`
	ProfileID     string   `json:"profile_id,omitempty"`
	IdentityIDs   []string `json:"identity_ids,omitempty"`
	ProfileIDs    []string `json:"profile_ids,omitempty"`
	IdentityEmail string   `json:"identity_email,omitempty"`
	ProfileEmail  string   `json:"profile_email,omitempty"`
}

func toInconsistencyDTO(item recon.Inconsistency) inconsistencyDTO {
	dto := inconsistencyDTO{
		Kind:     string(item.Kind()),
		Severity: string(item.Severity()),
		Email:    item.Email(),
		Details:  item.Describe(),
	}
	switch v := item.(type) {
	case recon.OrphanedIdentity:
		dto.IdentityID = v.IdentityID.String()
	case recon.OrphanedProfile:
		dto.ProfileID = v.ProfileID.String()
	case recon.IDCollision:
		for _, id := range v.IdentityIDs {
			dto.IdentityIDs = append(dto.IdentityIDs, id.String())
		}
		for _, id := range v.ProfileIDs {
			dto.ProfileIDs = append(dto.ProfileIDs, id.String())
		}
	case recon.EmailMismatch:
		dto.ProfileID = v.RecordID.String()
		dto.IdentityEmail = v.IdentityEmail
		dto.ProfileEmail = v.ProfileEmail
	}
	return dto
}

func fromInconsistencyDTO(dto inconsistencyDTO) (recon.Inconsistency, error) {
	switch recon.Kind(dto.Kind) {
	case recon.KindOrphanedIdentity:
		id, err := uuid.Parse(dto.IdentityID)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid identity_id %q", dto.IdentityID)
		}
		return recon.OrphanedIdentity{IdentityID: id, Addr: dto.Email}, nil
	case recon.KindOrphanedProfile:
		id, err := uuid.Parse(dto.ProfileID)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid profile_id %q", dto.ProfileID)
		}
		return recon.OrphanedProfile{ProfileID: id, Addr: dto.Email}, nil
	case recon.KindIDCollision:
		c := recon.IDCollision{Addr: dto.Email}
		for _, raw := range dto.IdentityIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, dErrors.Newf(dErrors.CodeValidation, "invalid identity id %q", raw)
			}
			c.IdentityIDs = append(c.IdentityIDs, id)
		}
		for _, raw := range dto.ProfileIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, dErrors.Newf(dErrors.CodeValidation, "invalid profile id %q", raw)
			}
			c.ProfileIDs = append(c.ProfileIDs, id)
		}
		return c, nil
	case recon.KindEmailMismatch:
		id, err := uuid.Parse(dto.ProfileID)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid profile_id %q", dto.ProfileID)
		}
		return recon.EmailMismatch{
			RecordID:      id,
			IdentityEmail: dto.IdentityEmail,
			ProfileEmail:  dto.ProfileEmail,
		}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown inconsistency kind %q", dto.Kind)
	}
}
