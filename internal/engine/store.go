package engine

import (
	"github.com/geovault/geovault/internal/models"
)

// RegisterLocation verifies a fingerprint and, on success, seals it and
// appends it to the user's history. On verification failure nothing is stored
// and the crypto engine is never invoked. The returned payload carries the
// ciphertext as the record's externally visible handle.
func (e *Engine) RegisterLocation(location *models.Location) models.RegisteredPayload {
	if ok, reason := e.VerifyLocation(location); !ok {
		e.logger.Warn().
			Str("user_id", location.UserID).
			Str("reason", reason).
			Msg("Location verification failed")
		return models.RegisteredPayload{
			Success: false,
			Message: "Location verification failed: " + reason,
		}
	}

	sealed, err := e.crypto.EncryptLocation(location)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to encrypt location")
		return models.RegisteredPayload{
			Success: false,
			Message: "Failed to encrypt location: " + err.Error(),
		}
	}

	e.history.Upsert(location.UserID, nil, func(_ bool, current, _ []models.EncryptedLocation) []models.EncryptedLocation {
		return append(current, sealed)
	})

	e.logger.Info().
		Str("user_id", location.UserID).
		Str("device_id", location.DeviceID).
		Msg("Location registered")
	return models.RegisteredPayload{
		EncLocation: sealed.EncData,
		Success:     true,
		Message:     "Location registered successfully.",
	}
}

// LookupLocation finds a sealed record by its opaque ciphertext id and opens
// it. The scan is linear over every user's history: acceptable at in-memory
// demo scale, a known scaling limit beyond it.
func (e *Engine) LookupLocation(encryptedID string) (*models.Location, error) {
	for tuple := range e.history.IterBuffered() {
		for i := range tuple.Val {
			if tuple.Val[i].EncData == encryptedID {
				return e.crypto.DecryptLocation(&tuple.Val[i])
			}
		}
	}
	return nil, ErrNotFound
}

// userHistory returns a snapshot of one user's sealed records.
func (e *Engine) userHistory(userID string) []models.EncryptedLocation {
	records, ok := e.history.Get(userID)
	if !ok {
		return nil
	}
	return records
}
