package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/syncroom/internal/domain"
)

type PromoteMemberParams struct {
	ConnID   string
	MemberID string
}

type PromoteMemberResponse struct {
	Master domain.Member
}

// PromoteMember hands the master role to another member of the sender's room.
func (s service) PromoteMember(ctx context.Context, params *PromoteMemberParams) (PromoteMemberResponse, error) {
	rm, err := s.lockCurrentRoom(params.ConnID, "")
	if err != nil {
		return PromoteMemberResponse{}, err
	}
	defer rm.Unlock()

	if rm.IsMaster(params.ConnID) && rm.IsMaster(params.MemberID) {
		return PromoteMemberResponse{Master: rm.Master()}, nil
	}

	master, err := rm.Promote(params.ConnID, params.MemberID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotMaster):
			s.metrics.RecordControlDenied("promote-member")
			return PromoteMemberResponse{}, ErrPermissionDenied
		case errors.Is(err, domain.ErrMemberNotFound):
			return PromoteMemberResponse{}, ErrMemberNotFound
		default:
			return PromoteMemberResponse{}, fmt.Errorf("failed to promote member: %w", err)
		}
	}

	s.metrics.RecordMasterChanged("promote")
	s.logger.InfoContext(ctx, "member promoted", "room_id", rm.ID(), "master_id", master.ID)

	s.broadcastMasterChanged(ctx, rm, master)
	s.broadcastMemberList(ctx, rm)
	s.postSystemNotice(ctx, rm, master.Name+" is now the host")

	return PromoteMemberResponse{Master: master}, nil
}
