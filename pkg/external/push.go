package external

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// PushEntity projects a canonical entity into the external schema and writes
// it to the external service: POST when the entity has no external identity
// yet, PATCH against the existing record otherwise. On create, the external
// identity assigned by the service is returned.
func (c *Client) PushEntity(ctx context.Context, collection string, entity *models.Entity) (*models.ExternalPushResult, error) {
	ctx, span := tracing.StartSpan(ctx, "external.Client.PushEntity")
	defer span.End()

	payload := buildPushPayload(entity)

	var result models.ExternalPushResult
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&result)

	var err error
	var status string
	if entity.ExternalID != nil && *entity.ExternalID != "" {
		resp, reqErr := req.Patch(fmt.Sprintf("/v1/%s/%s", collection, *entity.ExternalID))
		err = reqErr
		if resp != nil {
			status = resp.Status()
			if reqErr == nil && resp.IsError() {
				err = fmt.Errorf("unexpected status %s", status)
			}
		}
		if err == nil && result.ID == "" {
			result.ID = *entity.ExternalID
		}
	} else {
		resp, reqErr := req.Post(fmt.Sprintf("/v1/%s", collection))
		err = reqErr
		if resp != nil {
			status = resp.Status()
			if reqErr == nil && resp.IsError() {
				err = fmt.Errorf("unexpected status %s", status)
			}
		}
	}

	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"collection": collection,
			"entity_id":  entity.ID,
		}).Error("Failed to push entity to external service")
		return nil, err
	}

	return &result, nil
}

// buildPushPayload projects the mapped columns into the external schema.
// Local-only columns (notes, internal status) never leave the service.
func buildPushPayload(entity *models.Entity) map[string]any {
	payload := map[string]any{
		"name": entity.Name,
	}

	setIfPresent := func(key string, v *string) {
		if v != nil && *v != "" {
			payload[key] = *v
		}
	}
	setIfPresent("email", entity.Email)
	setIfPresent("phone", entity.Phone)
	setIfPresent("website", entity.Website)
	setIfPresent("location", entity.Location)
	setIfPresent("type", entity.Classification)
	setIfPresent("bio", entity.Bio)

	if len(entity.Sectors) > 0 {
		var sectors []string
		if err := json.Unmarshal(entity.Sectors, &sectors); err == nil && len(sectors) > 0 {
			payload["sectors"] = sectors
		}
	}
	if len(entity.Stages) > 0 {
		var stages []string
		if err := json.Unmarshal(entity.Stages, &stages); err == nil && len(stages) > 0 {
			payload["stages"] = stages
		}
	}

	return payload
}
