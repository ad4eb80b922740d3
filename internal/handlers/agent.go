// internal/handlers/agent.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kucash/kucash-backend/internal/services"
	"github.com/kucash/kucash-backend/internal/utils"
)

type AgentHandler struct {
	applicationService *services.ApplicationService
}

func NewAgentHandler(applicationService *services.ApplicationService) *AgentHandler {
	return &AgentHandler{applicationService: applicationService}
}

// GetAgentApplications lists applications attributed to the calling agent.
func (h *AgentHandler) GetAgentApplications(c *gin.Context) {
	code, ok := utils.GetAgentCodeFromContext(c)
	if !ok {
		utils.ForbiddenResponse(c, "Agent code missing from token")
		return
	}

	params := utils.GetPaginationParams(c)
	apps, total, err := h.applicationService.ListForAgent(code, params)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to list referrals")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(apps, total, params))
}

// GetAgentDashboard summarizes the calling agent's referral pipeline and
// commission.
func (h *AgentHandler) GetAgentDashboard(c *gin.Context) {
	code, ok := utils.GetAgentCodeFromContext(c)
	if !ok {
		utils.ForbiddenResponse(c, "Agent code missing from token")
		return
	}

	stats, err := h.applicationService.AgentStats(code)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to load dashboard")
		return
	}

	utils.SuccessResponse(c, gin.H{"stats": stats})
}
