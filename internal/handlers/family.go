package handlers

import (
	"errors"
	"strings"

	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/middleware"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/models"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/services"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/pkg/logger"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FamilyHandler is the HTTP face of the membership coordination engine.
// Reads are served directly; every mutation goes through the Coordinator.
type FamilyHandler struct {
	DB          *gorm.DB
	Coordinator *services.Coordinator
	Audit       *services.AuditService
}

func NewFamilyHandler(db *gorm.DB, coordinator *services.Coordinator, audit *services.AuditService) *FamilyHandler {
	return &FamilyHandler{DB: db, Coordinator: coordinator, Audit: audit}
}

type createFamilyRequest struct {
	Name string `json:"name"`
}

func (h *FamilyHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createFamilyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	family, aerr := h.Coordinator.CreateFamily(c.UserContext(), currentUser, req.Name)
	if aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "family.create", &family.ID, map[string]interface{}{
		"family_name": family.Name,
	})

	return utils.Success(c, fiber.StatusCreated, family)
}

// Get returns the membership facts downstream modules consume: the family,
// its members with roles, and the requests the caller may act on.
func (h *FamilyHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var myRequests []models.MembershipRequest
	if err := h.DB.
		Where("user_id = ? AND status = ?", currentUser.ID, models.RequestStatusPending).
		Find(&myRequests).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing requests")
	}

	var membership models.FamilyMembership
	err := h.DB.First(&membership, "user_id = ?", currentUser.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"family":     nil,
			"myRequests": myRequests,
		})
	}
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading membership")
	}

	var family models.Family
	if err := h.DB.Preload("Memberships.User").First(&family, "id = ?", membership.FamilyID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading family")
	}

	data := fiber.Map{
		"family":     family,
		"role":       membership.Role,
		"myRequests": myRequests,
	}

	if membership.Role.CanManage() {
		var pending []models.MembershipRequest
		if err := h.DB.Preload("User").
			Where("family_id = ? AND status = ?", family.ID, models.RequestStatusPending).
			Find(&pending).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed listing requests")
		}
		data["pendingRequests"] = pending
	}

	return utils.Success(c, fiber.StatusOK, data)
}

type actionRequest struct {
	Action         string     `json:"action"`
	GroupID        *uuid.UUID `json:"group_id"`
	ReferralID     string     `json:"referral_id"`
	ShareCode      string     `json:"share_code"`
	RequestID      *uuid.UUID `json:"request_id"`
	Response       string     `json:"response"`
	SuccessorID    *uuid.UUID `json:"successor_id"`
	TargetUserID   *uuid.UUID `json:"target_user_id"`
	FamilyBudgetID *uuid.UUID `json:"family_budget_id"`
}

// Action is the single coordination endpoint; the action field dispatches.
func (h *FamilyHandler) Action(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "invite":
		return h.invite(c, currentUser, &req)
	case "join":
		return h.join(c, currentUser, &req)
	case "respond":
		return h.respond(c, currentUser, &req)
	case "leave":
		return h.leave(c, currentUser, &req)
	case "cancel_request":
		return h.cancelRequest(c, currentUser, &req)
	case "transfer_admin":
		return h.transferAdmin(c, currentUser, &req)
	case "revert_budget":
		return h.revertBudget(c, currentUser, &req)
	default:
		return utils.Error(c, fiber.StatusBadRequest, "unknown action")
	}
}

func (h *FamilyHandler) invite(c *fiber.Ctx, currentUser *models.User, req *actionRequest) error {
	if req.GroupID == nil || strings.TrimSpace(req.ReferralID) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "group_id and referral_id are required")
	}

	outcome, aerr := h.Coordinator.Invite(c.UserContext(), currentUser, *req.GroupID, req.ReferralID)
	if aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "family.invite", req.GroupID, map[string]interface{}{
		"referral_id":   req.ReferralID,
		"auto_accepted": outcome.AutoAccepted,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":      outcome.Message,
		"autoAccepted": outcome.AutoAccepted,
	})
}

func (h *FamilyHandler) join(c *fiber.Ctx, currentUser *models.User, req *actionRequest) error {
	if strings.TrimSpace(req.ShareCode) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "share_code is required")
	}

	outcome, aerr := h.Coordinator.Join(c.UserContext(), currentUser, req.ShareCode)
	if aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "family.join", nil, map[string]interface{}{
		"auto_accepted": outcome.AutoAccepted,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":      outcome.Message,
		"autoAccepted": outcome.AutoAccepted,
	})
}

func (h *FamilyHandler) respond(c *fiber.Ctx, currentUser *models.User, req *actionRequest) error {
	if req.RequestID == nil {
		return utils.Error(c, fiber.StatusBadRequest, "request_id is required")
	}

	var accept bool
	switch strings.ToLower(strings.TrimSpace(req.Response)) {
	case "accept":
		accept = true
	case "reject":
		accept = false
	default:
		return utils.Error(c, fiber.StatusBadRequest, "response must be accept or reject")
	}

	outcome, aerr := h.Coordinator.Respond(c.UserContext(), currentUser, *req.RequestID, accept)
	if aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "family.respond", nil, map[string]interface{}{
		"request_id": req.RequestID.String(),
		"accepted":   accept,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": outcome.Message})
}

func (h *FamilyHandler) leave(c *fiber.Ctx, currentUser *models.User, req *actionRequest) error {
	outcome, aerr := h.Coordinator.Leave(c.UserContext(), currentUser, req.SuccessorID)
	if aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "family.leave", nil, map[string]interface{}{
		"family_deleted": outcome.FamilyDeleted,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":       outcome.Message,
		"familyDeleted": outcome.FamilyDeleted,
	})
}

func (h *FamilyHandler) cancelRequest(c *fiber.Ctx, currentUser *models.User, req *actionRequest) error {
	if req.RequestID == nil {
		return utils.Error(c, fiber.StatusBadRequest, "request_id is required")
	}

	if aerr := h.Coordinator.CancelRequest(c.UserContext(), currentUser, *req.RequestID); aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "family.cancel_request", nil, map[string]interface{}{
		"request_id": req.RequestID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "request cancelled"})
}

func (h *FamilyHandler) transferAdmin(c *fiber.Ctx, currentUser *models.User, req *actionRequest) error {
	if req.TargetUserID == nil {
		return utils.Error(c, fiber.StatusBadRequest, "target_user_id is required")
	}

	if aerr := h.Coordinator.TransferAdmin(c.UserContext(), currentUser, *req.TargetUserID); aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "family.transfer_admin", nil, map[string]interface{}{
		"target_user_id": req.TargetUserID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "admin role transferred"})
}

func (h *FamilyHandler) revertBudget(c *fiber.Ctx, currentUser *models.User, req *actionRequest) error {
	if req.FamilyBudgetID == nil {
		return utils.Error(c, fiber.StatusBadRequest, "family_budget_id is required")
	}

	outcome, aerr := h.Coordinator.RevertBudget(c.UserContext(), currentUser, *req.FamilyBudgetID)
	if aerr != nil {
		return respondActionError(c, aerr)
	}

	h.logAction(c, currentUser, "budget.revert", nil, map[string]interface{}{
		"family_budget_id": req.FamilyBudgetID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": outcome.Message})
}

func (h *FamilyHandler) logAction(c *fiber.Ctx, currentUser *models.User, action string, familyID *uuid.UUID, details map[string]interface{}) {
	logger.InfoWithUser(currentUser.ID.String(), action, details)

	if h.Audit == nil {
		return
	}
	userID := currentUser.ID
	h.Audit.LogAsync(services.AuditEntry{
		UserID:    &userID,
		Action:    action,
		FamilyID:  familyID,
		Details:   details,
		IPAddress: c.IP(),
	})
}

func actionStatus(kind services.ErrorKind) int {
	switch kind {
	case services.KindAuthenticationFailed:
		return fiber.StatusUnauthorized
	case services.KindAuthorizationDenied:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindPreconditionRequired:
		return fiber.StatusPreconditionRequired
	default:
		return fiber.StatusInternalServerError
	}
}

func respondActionError(c *fiber.Ctx, aerr *services.ActionError) error {
	return utils.ErrorKind(c, actionStatus(aerr.Kind), string(aerr.Kind), aerr.Message)
}
