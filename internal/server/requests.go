package server

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/creatorops/rotor/internal/models"
)

func platformRule() validation.Rule {
	known := make([]interface{}, len(models.KnownPlatforms))
	for i, p := range models.KnownPlatforms {
		known[i] = p
	}
	return validation.In(known...)
}

type loginRequest struct {
	Code string `json:"code"`
}

func (r loginRequest) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &r,
		validation.Field(&r.Code, validation.Required, validation.Length(6, 8)),
	)
}

type startRequest struct {
	IntervalMinutes int      `json:"intervalMinutes"`
	Categories      []string `json:"categories"`
	Targets         []string `json:"targets"`
}

func (r startRequest) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &r,
		validation.Field(&r.IntervalMinutes, validation.Min(0), validation.Max(1440)),
		validation.Field(&r.Targets, validation.Each(platformRule())),
	)
}

type accountCreateRequest struct {
	Platform      string `json:"platform"`
	Handle        string `json:"handle"`
	DisplayName   string `json:"displayName"`
	CredentialRef string `json:"credentialRef"`
}

func (r accountCreateRequest) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &r,
		validation.Field(&r.Platform, validation.Required, platformRule()),
		validation.Field(&r.Handle, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.DisplayName, validation.Length(0, 255)),
	)
}

type accountStatusRequest struct {
	Status string `json:"status"`
}

func (r accountStatusRequest) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &r,
		validation.Field(&r.Status, validation.Required, validation.In(
			string(models.AccountStatusActive),
			string(models.AccountStatusBanned),
			string(models.AccountStatusError),
			string(models.AccountStatusUnknown),
		)),
	)
}

type rotationRequest struct {
	AccountID       uint   `json:"accountId"`
	Format          string `json:"format"`
	DailyLimit      int    `json:"dailyLimit"`
	CooldownMinutes int    `json:"cooldownMinutes"`
}

func (r rotationRequest) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &r,
		validation.Field(&r.AccountID, validation.Required),
		validation.Field(&r.Format, validation.Length(0, 100)),
		validation.Field(&r.DailyLimit, validation.Min(0)),
		validation.Field(&r.CooldownMinutes, validation.Min(0)),
	)
}

type uploadCreateRequest struct {
	SourceRef string   `json:"sourceRef"`
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Platforms []string `json:"platforms"`
}

func (r uploadCreateRequest) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &r,
		validation.Field(&r.SourceRef, validation.Required, validation.Length(1, 500)),
		validation.Field(&r.Title, validation.Length(0, 500)),
		validation.Field(&r.Platforms, validation.Required, validation.Each(platformRule())),
	)
}
