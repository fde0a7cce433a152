package institution

import (
	"errors"
	"strconv"

	"github.com/edumesh/edumesh-api/model"
	"github.com/edumesh/edumesh-api/services"
	"github.com/edumesh/edumesh-api/utils/middleware"
	"github.com/edumesh/edumesh-api/utils/response"
	"github.com/edumesh/edumesh-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// InstitutionHandler handles institution-related requests
type InstitutionHandler struct {
	db        *gorm.DB
	validator *validation.Validator
	scopes    *services.ScopeService
	impact    *services.ImpactService
	deletion  *services.DeletionService
}

// NewInstitutionHandler creates a new institution handler
func NewInstitutionHandler(db *gorm.DB, deletion *services.DeletionService) *InstitutionHandler {
	return &InstitutionHandler{
		db:        db,
		validator: validation.NewValidator(),
		scopes:    services.NewScopeService(db),
		impact:    services.NewImpactService(db),
		deletion:  deletion,
	}
}

// CreateInstitutionRequest represents the request body for creating an institution
type CreateInstitutionRequest struct {
	Name            string `json:"name" validate:"required,min=3,max=255"`
	ShortName       string `json:"short_name" validate:"omitempty,max=50"`
	Type            string `json:"type" validate:"required,min=2,max=50"`
	InstitutionCode string `json:"institution_code" validate:"required,min=2,max=50"`
	RegionCode      string `json:"region_code" validate:"omitempty,max=50"`
	ParentID        *uint  `json:"parent_id"`
	Level           int    `json:"level" validate:"required,gte=1,lte=4"`
}

// UpdateInstitutionRequest represents the request body for updating an institution
type UpdateInstitutionRequest struct {
	Name       string `json:"name" validate:"omitempty,min=3,max=255"`
	ShortName  string `json:"short_name" validate:"omitempty,max=50"`
	RegionCode string `json:"region_code" validate:"omitempty,max=50"`
	IsActive   *bool  `json:"is_active" validate:"omitempty"`
}

// resolveScope loads the authenticated user and resolves the part of the
// tree they are allowed to act on. On failure the response has already
// been written and the handler must return respErr as-is.
func (h *InstitutionHandler) resolveScope(c *fiber.Ctx) (user *model.User, scope services.Scope, ok bool, respErr error) {
	user, found := middleware.GetUser(c)
	if !found || user == nil {
		return nil, nil, false, response.Unauthorized(c, "User not authenticated")
	}

	scope, err := h.scopes.ResolveScope(c.Context(), user)
	if err != nil {
		var authErr *services.AuthorizationError
		if errors.As(err, &authErr) {
			return nil, nil, false, response.Forbidden(c, authErr.Reason)
		}
		return nil, nil, false, response.InternalServerError(c, "Failed to resolve access scope")
	}

	return user, scope, true, nil
}

// ListInstitutions handles GET /api/v1/institutions
func (h *InstitutionHandler) ListInstitutions(c *fiber.Ctx) error {
	user, scope, ok, respErr := h.resolveScope(c)
	if !ok {
		return respErr
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	search := c.Query("search", "")
	level := c.Query("level", "")
	parentID := c.Query("parent_id", "")
	includeArchived := c.Query("include_archived") == "true"

	query := h.db.Model(&model.Institution{})
	if includeArchived && user.CanManageInstitutions() {
		query = query.Unscoped()
	}

	if scope != nil {
		ids := make([]uint, 0, len(scope))
		for id := range scope {
			ids = append(ids, id)
		}
		query = query.Where("id IN ?", ids)
	}

	if search != "" {
		query = query.Where("name ILIKE ? OR institution_code ILIKE ?",
			"%"+search+"%", "%"+search+"%")
	}
	if level != "" {
		if lvl, err := strconv.Atoi(level); err == nil {
			query = query.Where("level = ?", lvl)
		}
	}
	if parentID != "" {
		if pid, err := strconv.Atoi(parentID); err == nil {
			query = query.Where("parent_id = ?", pid)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count institutions")
	}

	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var institutions []model.Institution
	if err := query.Order("level ASC, name ASC").
		Limit(limit).
		Offset(offset).
		Find(&institutions).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch institutions")
	}

	return response.Paginated(c, institutions, pagination)
}

// GetInstitution handles GET /api/v1/institutions/:id
func (h *InstitutionHandler) GetInstitution(c *fiber.Ctx) error {
	user, scope, ok, respErr := h.resolveScope(c)
	if !ok {
		return respErr
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "Invalid institution id")
	}

	// Out-of-scope nodes are reported as missing so their existence
	// is not leaked to callers who cannot see them.
	if !scope.Allows(uint(id)) {
		return response.NotFound(c, "Institution not found")
	}

	// Managers can inspect archived nodes, matching the deletion surface
	// they just drove; everyone else sees live nodes only.
	query := h.db.Preload("Children")
	if user.CanManageInstitutions() {
		query = h.db.Unscoped().Preload("Children", func(tx *gorm.DB) *gorm.DB {
			return tx.Unscoped()
		})
	}

	var institution model.Institution
	if err := query.First(&institution, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Institution not found")
		}
		return response.InternalServerError(c, "Failed to fetch institution")
	}

	return response.Success(c, institution)
}

// CreateInstitution handles POST /api/v1/institutions
func (h *InstitutionHandler) CreateInstitution(c *fiber.Ctx) error {
	user, scope, ok, respErr := h.resolveScope(c)
	if !ok {
		return respErr
	}
	if !user.CanManageInstitutions() {
		return response.Forbidden(c, "Only administrators can create institutions")
	}

	var req CreateInstitutionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	req.Name = validation.SanitizeString(req.Name)
	req.ShortName = validation.SanitizeString(req.ShortName)
	req.InstitutionCode = validation.SanitizeString(req.InstitutionCode)

	if req.Level > model.InstitutionLevelMinistry && req.ParentID == nil {
		return response.BadRequest(c, "Institutions below ministry level require a parent")
	}

	if req.ParentID != nil {
		if !scope.Allows(*req.ParentID) {
			return response.NotFound(c, "Parent institution not found")
		}

		var parent model.Institution
		if err := h.db.First(&parent, *req.ParentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return response.NotFound(c, "Parent institution not found")
			}
			return response.InternalServerError(c, "Failed to fetch parent institution")
		}
		if parent.Level != req.Level-1 {
			return response.BadRequest(c, "Parent must be exactly one level above the new institution")
		}
	}

	var existing model.Institution
	if err := h.db.Unscoped().Where("institution_code = ?", req.InstitutionCode).First(&existing).Error; err == nil {
		return response.Conflict(c, "Institution with this code already exists")
	}

	institution := model.Institution{
		Name:            req.Name,
		ShortName:       req.ShortName,
		Type:            req.Type,
		InstitutionCode: req.InstitutionCode,
		RegionCode:      req.RegionCode,
		ParentID:        req.ParentID,
		Level:           req.Level,
		IsActive:        true,
	}

	if err := h.db.Create(&institution).Error; err != nil {
		return response.InternalServerError(c, "Failed to create institution")
	}

	return response.Created(c, institution)
}

// UpdateInstitution handles PUT /api/v1/institutions/:id
func (h *InstitutionHandler) UpdateInstitution(c *fiber.Ctx) error {
	user, scope, ok, respErr := h.resolveScope(c)
	if !ok {
		return respErr
	}
	if !user.CanManageInstitutions() {
		return response.Forbidden(c, "Only administrators can update institutions")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "Invalid institution id")
	}
	if !scope.Allows(uint(id)) {
		return response.NotFound(c, "Institution not found")
	}

	var req UpdateInstitutionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var institution model.Institution
	if err := h.db.First(&institution, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Institution not found")
		}
		return response.InternalServerError(c, "Failed to fetch institution")
	}

	if req.Name != "" {
		institution.Name = validation.SanitizeString(req.Name)
	}
	if req.ShortName != "" {
		institution.ShortName = validation.SanitizeString(req.ShortName)
	}
	if req.RegionCode != "" {
		institution.RegionCode = req.RegionCode
	}
	if req.IsActive != nil {
		institution.IsActive = *req.IsActive
	}

	if err := h.db.Save(&institution).Error; err != nil {
		return response.InternalServerError(c, "Failed to update institution")
	}

	return response.SuccessWithMessage(c, "Institution updated successfully", institution)
}
