package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/driftchat/server/auth"
	"github.com/driftchat/driftchat/store"
)

type settingPayload struct {
	MemoryEnabled      bool `json:"memory_enabled"`
	CompressionEnabled bool `json:"compression_enabled"`
}

// GetSetting returns the caller's generation preferences.
func (s *APIV1Service) GetSetting(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	setting, err := s.Store.GetUserSetting(c.Request().Context(), &store.FindUserSetting{UserID: userID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get settings").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &settingPayload{
		MemoryEnabled:      setting.MemoryEnabled,
		CompressionEnabled: setting.CompressionEnabled,
	})
}

type updateSettingRequest struct {
	MemoryEnabled      *bool `json:"memory_enabled"`
	CompressionEnabled *bool `json:"compression_enabled"`
}

// UpdateSetting changes the caller's generation preferences.
func (s *APIV1Service) UpdateSetting(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	req := &updateSettingRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	setting, err := s.Store.GetUserSetting(c.Request().Context(), &store.FindUserSetting{UserID: userID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get settings").SetInternal(err)
	}
	if req.MemoryEnabled != nil {
		setting.MemoryEnabled = *req.MemoryEnabled
	}
	if req.CompressionEnabled != nil {
		setting.CompressionEnabled = *req.CompressionEnabled
	}

	updated, err := s.Store.UpsertUserSetting(c.Request().Context(), setting)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update settings").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &settingPayload{
		MemoryEnabled:      updated.MemoryEnabled,
		CompressionEnabled: updated.CompressionEnabled,
	})
}

type credentialPayload struct {
	Provider  string `json:"provider"`
	UpdatedTs int64  `json:"updated_ts"`
}

// ListCredentials returns the providers the caller stored keys for.
// Key material never leaves the server.
func (s *APIV1Service) ListCredentials(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	credentials, err := s.Store.ListUserCredentials(c.Request().Context(), &store.FindUserCredential{
		UserID: &userID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list credentials").SetInternal(err)
	}

	payload := make([]*credentialPayload, 0, len(credentials))
	for _, credential := range credentials {
		payload = append(payload, &credentialPayload{
			Provider:  credential.Provider,
			UpdatedTs: credential.UpdatedTs,
		})
	}
	return c.JSON(http.StatusOK, payload)
}

type upsertCredentialRequest struct {
	APIKey string `json:"api_key"`
}

// UpsertCredential stores an encrypted provider API key for the
// caller.
func (s *APIV1Service) UpsertCredential(c echo.Context) error {
	userID := auth.UserIDFromContext(c)
	provider := c.Param("provider")

	req := &upsertCredentialRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.APIKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "api_key is required")
	}

	cipher, err := store.EncryptAPIKey(req.APIKey, s.Profile.Secret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to encrypt key").SetInternal(err)
	}

	now := time.Now().Unix()
	credential, err := s.Store.UpsertUserCredential(c.Request().Context(), &store.UserCredential{
		UserID:    userID,
		Provider:  provider,
		KeyCipher: cipher,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store credential").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &credentialPayload{
		Provider:  credential.Provider,
		UpdatedTs: credential.UpdatedTs,
	})
}

// DeleteCredential removes a stored provider key.
func (s *APIV1Service) DeleteCredential(c echo.Context) error {
	userID := auth.UserIDFromContext(c)
	provider := c.Param("provider")

	if err := s.Store.DeleteUserCredential(c.Request().Context(), &store.DeleteUserCredential{
		UserID:   userID,
		Provider: provider,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete credential").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
