package institution

import (
	"errors"
	"strconv"

	"github.com/edumesh/edumesh-api/services"
	"github.com/edumesh/edumesh-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// GetDeleteImpact handles GET /api/v1/institutions/:id/delete-impact.
// It walks the visible subtree and returns the full blast radius of a
// delete without touching anything.
func (h *InstitutionHandler) GetDeleteImpact(c *fiber.Ctx) error {
	user, scope, ok, respErr := h.resolveScope(c)
	if !ok {
		return respErr
	}
	if !user.CanManageInstitutions() {
		return response.Forbidden(c, "Only administrators can inspect deletion impact")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "Invalid institution id")
	}

	report, err := h.impact.ComputeImpact(c.Context(), uint(id), scope)
	if err != nil {
		if errors.Is(err, services.ErrInstitutionNotFound) {
			return response.NotFound(c, "Institution not found")
		}
		return response.InternalServerError(c, "Failed to compute deletion impact")
	}

	return response.Success(c, report)
}

// DeleteInstitution handles DELETE /api/v1/institutions/:id.
// Zero-impact requests complete synchronously; everything else is
// scheduled and answered with 202 plus an operation id to poll.
func (h *InstitutionHandler) DeleteInstitution(c *fiber.Ctx) error {
	user, scope, ok, respErr := h.resolveScope(c)
	if !ok {
		return respErr
	}
	if !user.CanManageInstitutions() {
		return response.Forbidden(c, "Only administrators can delete institutions")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "Invalid institution id")
	}

	var req services.DeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.deletion.Start(c.Context(), uint(id), req, scope, user.ID)
	if err != nil {
		var (
			valErr  *services.ValidationError
			conErr  *services.ConflictError
			authErr *services.AuthorizationError
		)
		switch {
		case errors.Is(err, services.ErrInstitutionNotFound):
			return response.NotFound(c, "Institution not found")
		case errors.As(err, &valErr):
			return response.ValidationFailed(c, valErr.Errors)
		case errors.As(err, &conErr):
			return response.ConflictWithData(c, "A delete operation is already running for this institution", fiber.Map{
				"operation_id": conErr.OperationID,
			})
		case errors.As(err, &authErr):
			return response.Forbidden(c, authErr.Reason)
		default:
			return response.InternalServerError(c, "Failed to start deletion")
		}
	}

	if result.Completed {
		return response.SuccessWithMessage(c, result.Message, nil)
	}

	return response.Accepted(c, fiber.Map{
		"operation_id":         result.OperationID,
		"status":               "processing",
		"estimated_completion": result.EstimatedCompletion,
	})
}

// GetOperation handles GET /api/v1/operations/:operationId.
// Clients poll this until the snapshot reports a terminal status.
func (h *InstitutionHandler) GetOperation(c *fiber.Ctx) error {
	user, _, ok, respErr := h.resolveScope(c)
	if !ok {
		return respErr
	}
	if !user.CanManageInstitutions() {
		return response.Forbidden(c, "Only administrators can inspect delete operations")
	}

	operationID := c.Params("operationId")
	if operationID == "" {
		return response.BadRequest(c, "Operation id is required")
	}

	snap, err := h.deletion.Status(c.Context(), operationID)
	if err != nil {
		if errors.Is(err, services.ErrOperationNotFound) {
			return response.NotFound(c, "Operation not found")
		}
		return response.InternalServerError(c, "Failed to fetch operation status")
	}

	return response.Success(c, snap)
}
