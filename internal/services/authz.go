package services

import (
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/models"
	"github.com/google/uuid"
)

// Authorization guard. Every function here is a pure check over already
// loaded rows: callers load the rows inside their transaction, run the
// check, and only then mutate. A nil return means the action is allowed.

// CanInvite requires the actor to manage the target family.
func CanInvite(actor *models.FamilyMembership, familyID uuid.UUID) *ActionError {
	if actor == nil || actor.FamilyID != familyID {
		return errDenied("you are not a member of this family")
	}
	if !actor.Role.CanManage() {
		return errDenied("only an admin or leader can invite")
	}
	return nil
}

// CanRespond decides who may approve or reject a request: the invited user
// for invites, a managing member of the request's family for join requests.
func CanRespond(actorID uuid.UUID, actor *models.FamilyMembership, request *models.MembershipRequest) *ActionError {
	switch request.Kind {
	case models.RequestKindInvite:
		if request.UserID != actorID {
			return errDenied("only the invited user can respond to this invitation")
		}
	case models.RequestKindJoin:
		if actor == nil || actor.FamilyID != request.FamilyID || !actor.Role.CanManage() {
			return errDenied("only an admin or leader can respond to join requests")
		}
	}
	return nil
}

// CanCancel allows join-request owners to cancel their own request and
// managing members to withdraw invitations their family sent.
func CanCancel(actorID uuid.UUID, actor *models.FamilyMembership, request *models.MembershipRequest) *ActionError {
	switch request.Kind {
	case models.RequestKindJoin:
		if request.UserID != actorID {
			return errDenied("you can only cancel your own request")
		}
	case models.RequestKindInvite:
		if actor == nil || actor.FamilyID != request.FamilyID || !actor.Role.CanManage() {
			return errDenied("only an admin or leader can withdraw an invitation")
		}
	}
	return nil
}

// CanTransferAdmin requires the actor to be the admin and the target a
// distinct member of the same family.
func CanTransferAdmin(actor, target *models.FamilyMembership) *ActionError {
	if actor == nil || actor.Role != models.FamilyRoleAdmin {
		return errDenied("only the family admin can transfer the admin role")
	}
	if target == nil || target.FamilyID != actor.FamilyID {
		return errNotFound("target user is not a member of your family")
	}
	if target.UserID == actor.UserID {
		return errConflict("cannot transfer the admin role to yourself")
	}
	return nil
}

// CanRevertBudget requires the actor to manage the budget's family.
func CanRevertBudget(actor *models.FamilyMembership, budget *models.FamilyBudget) *ActionError {
	if actor == nil || actor.FamilyID != budget.FamilyID {
		return errDenied("you are not a member of this family")
	}
	if !actor.Role.CanManage() {
		return errDenied("only an admin or leader can reopen a budget")
	}
	return nil
}
