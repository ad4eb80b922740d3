// internal/handlers/admin.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kucash/kucash-backend/internal/i18n"
	"github.com/kucash/kucash-backend/internal/models"
	"github.com/kucash/kucash-backend/internal/services"
	"github.com/kucash/kucash-backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats()
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to load dashboard")
		return
	}

	utils.SuccessResponse(c, gin.H{"stats": stats})
}

func (h *AdminHandler) GetApplications(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	apps, total, err := h.adminService.ListApplications(c.Query("agent"), params)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to list applications")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(apps, total, params))
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// UpdateApplicationStatus approves or rejects a pending application.
func (h *AdminHandler) UpdateApplicationStatus(c *gin.Context) {
	reviewerID, ok := callerID(c)
	if !ok {
		utils.UnauthenticatedResponse(c, "")
		return
	}

	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid application ID", nil)
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	app, err := h.adminService.UpdateApplicationStatus(
		appID, reviewerID, models.ApplicationStatus(req.Status), req.Note)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrApplicationNotFound):
			utils.NotFoundResponse(c, "application")
		case errors.Is(err, services.ErrAlreadyDecided):
			utils.ConflictResponse(c, err.Error())
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.SuccessResponse(c, gin.H{
		"application": app,
		"message":     i18n.T(lang, i18n.KeyApplicationStatusUpdated),
	})
}

// GetApplicationDocuments returns review links for an application's
// stored documents.
func (h *AdminHandler) GetApplicationDocuments(c *gin.Context) {
	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid application ID", nil)
		return
	}

	links, err := h.adminService.ApplicationDocuments(appID)
	if err != nil {
		if errors.Is(err, services.ErrApplicationNotFound) {
			utils.NotFoundResponse(c, "application")
			return
		}
		utils.InternalErrorResponse(c, "Failed to load documents")
		return
	}

	utils.SuccessResponse(c, gin.H{"documents": links})
}

// PurgeApplicationDocuments deletes a rejected application's stored
// documents.
func (h *AdminHandler) PurgeApplicationDocuments(c *gin.Context) {
	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid application ID", nil)
		return
	}

	app, err := h.adminService.PurgeApplicationDocuments(appID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrApplicationNotFound):
			utils.NotFoundResponse(c, "application")
		case errors.Is(err, services.ErrDocumentsRetained):
			utils.ConflictResponse(c, err.Error())
		default:
			utils.InternalErrorResponse(c, "Failed to purge documents")
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"application": app})
}

func (h *AdminHandler) GetUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	role := c.Query("role")

	users, total, err := h.adminService.ListUsers(role, params)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to list users")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(users, total, params))
}

func (h *AdminHandler) CreateAgent(c *gin.Context) {
	var req services.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	agent, err := h.adminService.CreateAgent(&req)
	if err != nil {
		if errs := utils.GetValidationErrors(err); len(errs) > 0 {
			utils.ValidationErrorResponse(c, errs)
			return
		}
		if err.Error() == "email or agent code already in use" {
			utils.ConflictResponse(c, err.Error())
			return
		}
		utils.InternalErrorResponse(c, "Failed to create agent")
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.CreatedResponse(c, gin.H{
		"agent":   agent,
		"message": i18n.T(lang, i18n.KeyUserCreated),
	})
}

type updateUserStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return
	}

	var req updateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	user, err := h.adminService.UpdateUserStatus(userID, models.UserStatus(req.Status))
	if err != nil {
		if err.Error() == "user not found" {
			utils.NotFoundResponse(c, "user")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.SuccessResponse(c, gin.H{
		"user":    user,
		"message": i18n.T(lang, i18n.KeyUserStatusUpdated),
	})
}
