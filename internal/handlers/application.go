// internal/handlers/application.go
package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kucash/kucash-backend/internal/i18n"
	"github.com/kucash/kucash-backend/internal/models"
	"github.com/kucash/kucash-backend/internal/services"
	"github.com/kucash/kucash-backend/internal/utils"
)

type ApplicationHandler struct {
	applicationService *services.ApplicationService
}

func NewApplicationHandler(applicationService *services.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applicationService: applicationService}
}

// SubmitApplication accepts the multipart intake form, runs the pipeline
// and returns the assigned application identifier.
func (h *ApplicationHandler) SubmitApplication(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		utils.UnauthenticatedResponse(c, "")
		return
	}

	var req services.SubmitApplicationRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid form data", nil)
		return
	}

	docs := collectDocuments(c)

	// Agent accounts submit on behalf of walk-in customers.
	source := models.SubmissionSourceWebsite
	if role, _ := utils.GetUserRoleFromContext(c); role == string(models.UserRoleAgent) {
		source = models.SubmissionSourceBranch
	}

	meta := services.RequestMeta{
		Source:    source,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	app, err := h.applicationService.Submit(userID, &req, docs, meta)
	if err != nil {
		var vErr *services.ValidationFailedError
		if errors.As(err, &vErr) {
			utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED",
				strings.Join(vErr.Violations, "; "), vErr.Violations)
			return
		}
		var pErr *services.PersistenceError
		if errors.As(err, &pErr) {
			utils.ErrorResponse(c, http.StatusInternalServerError, "PERSISTENCE_FAILED",
				pErr.Message, gin.H{"code": pErr.Code})
			return
		}
		utils.InternalErrorResponse(c, "Failed to submit application")
		return
	}

	lang := utils.GetLangFromContext(c)
	utils.CreatedResponse(c, gin.H{
		"application":    app,
		"application_id": app.LoanID,
		"message":        i18n.T(lang, i18n.KeyApplicationSubmitted),
	})
}

// collectDocuments pulls the four well-known document slots plus the
// indexed extra documents out of the multipart form. Absent slots stay nil;
// presence is not validated here.
func collectDocuments(c *gin.Context) *services.DocumentSet {
	docs := &services.DocumentSet{
		PanCard:      formFile(c, "panCard"),
		AadhaarCard:  formFile(c, "aadhaarCard"),
		IncomeProof:  formFile(c, "incomeProof"),
		AddressProof: formFile(c, "addressProof"),
	}

	count, _ := strconv.Atoi(c.PostForm("otherDocCount"))
	for i := 0; i < count; i++ {
		name := c.PostForm(fmt.Sprintf("otherDocName_%d", i))
		file := formFile(c, fmt.Sprintf("otherDocFile_%d", i))
		if name == "" || file == nil {
			continue
		}
		docs.Other = append(docs.Other, services.NamedDocument{Name: name, File: file})
	}

	return docs
}

func formFile(c *gin.Context, field string) *multipart.FileHeader {
	file, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return file
}

// GetApplications lists the caller's own applications.
func (h *ApplicationHandler) GetApplications(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		utils.UnauthenticatedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	apps, total, err := h.applicationService.ListForUser(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to list applications")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(apps, total, params))
}

// GetApplication returns one application. Customers see only their own;
// agents see their referrals; admins see everything.
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		utils.UnauthenticatedResponse(c, "")
		return
	}

	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid application ID", nil)
		return
	}

	app, err := h.applicationService.GetApplication(appID)
	if err != nil {
		utils.NotFoundResponse(c, "application")
		return
	}

	if !canViewApplication(c, app, userID) {
		utils.ForbiddenResponse(c, "")
		return
	}

	utils.SuccessResponse(c, gin.H{"application": app})
}

func canViewApplication(c *gin.Context, app *models.LoanApplication, userID uuid.UUID) bool {
	role, _ := utils.GetUserRoleFromContext(c)
	switch role {
	case string(models.UserRoleAdmin):
		return true
	case string(models.UserRoleAgent):
		if app.UserID == userID {
			return true
		}
		code, ok := utils.GetAgentCodeFromContext(c)
		return ok && app.AgentID != nil && *app.AgentID == code
	default:
		return app.UserID == userID
	}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}
