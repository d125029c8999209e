package descriptor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// manifestEnvelope — временные границы манифеста payload.
// Остальные поля манифеста непрозрачны для ядра.
type manifestEnvelope struct {
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerifyManifests проверяет временные границы манифестов всех
// vm/manifest-payload дескриптора. Проверка цепочки сертификатов
// остаётся на стороне маркетплейса.
func VerifyManifests(dapp *Dapp) error {
	for name, payload := range dapp.Payloads {
		if payload.Runtime != RuntimeVMManifest {
			continue
		}
		if err := verifyManifest(name, payload); err != nil {
			return err
		}
	}
	return nil
}

// verifyManifest проверяет один манифест, если он задан.
func verifyManifest(name string, payload *Payload) error {
	raw, ok := payload.Params["manifest"].(string)
	if !ok || raw == "" {
		return nil
	}

	content := []byte(raw)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		content = decoded
	}

	var m manifestEnvelope
	if err := json.Unmarshal(content, &m); err != nil {
		return NewDescriptorError(name, "manifest",
			"manifest is neither valid base64 nor valid JSON", ErrInvalidField)
	}

	now := time.Now()
	if !m.CreatedAt.IsZero() && m.CreatedAt.After(now) {
		return NewDescriptorError(name, "manifest",
			fmt.Sprintf("manifest creation date %s is in the future", m.CreatedAt),
			ErrManifestExpired)
	}
	if !m.ExpiresAt.IsZero() && m.ExpiresAt.Before(now) {
		return NewDescriptorError(name, "manifest",
			fmt.Sprintf("manifest expired at %s", m.ExpiresAt),
			ErrManifestExpired)
	}
	return nil
}
