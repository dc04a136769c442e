package review

import (
	"context"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// CommentInput is a supervisor remark on an item.
type CommentInput struct {
	ItemID      int64
	Body        string
	RecipientID *int64
}

// ListComments returns the comments of an item, oldest first.
func (s *Service) ListComments(ctx context.Context, p shared.Principal, itemID int64) ([]Comment, error) {
	if _, err := s.GetItem(ctx, p, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, itemID)
}

// AddComment records a supervisor comment. Comments on a closed period are
// kept as follow-ups. Without an explicit recipient the comment is addressed
// to the reviewer currently holding the item's group.
func (s *Service) AddComment(ctx context.Context, p shared.Principal, in CommentInput) (Comment, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return Comment{}, invalidf("comment text is required")
	}
	var comment Comment
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriodOfItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		item, err := tx.LoadItemForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		recipient := in.RecipientID
		if recipient == nil {
			active, err := tx.GroupDelegations(ctx, period.ID, item.AssetNumber)
			if err != nil {
				return err
			}
			if reviewer, ok := (AssetGroup{Active: active}).Reviewer(); ok {
				recipient = ptr(reviewer)
			}
		}
		kind := CommentNormal
		if period.Closed() {
			kind = CommentFollowUp
		}
		comment, err = tx.InsertComment(ctx, Comment{
			PeriodID:    period.ID,
			ItemID:      item.ID,
			AuthorID:    p.UserID,
			RecipientID: recipient,
			Kind:        kind,
			Body:        body,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
		s.record(ctx, tx, commentAudit(period, p.UserID, "comment.create", comment))
		return nil
	})
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

// RespondComment stores the reviewer's reply to a comment.
func (s *Service) RespondComment(ctx context.Context, p shared.Principal, commentID int64, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, invalidf("response text is required")
	}
	var comment Comment
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		comment, err = tx.LoadCommentForUpdate(ctx, commentID)
		if err != nil {
			return err
		}
		period, err := tx.LockPeriod(ctx, comment.PeriodID, false)
		if err != nil {
			return err
		}
		if err := authorize(p, period); err != nil {
			return err
		}
		if period.Closed() {
			return ErrPeriodClosed
		}
		now := s.now()
		comment.Response = body
		comment.RespondedBy = ptr(p.UserID)
		comment.RespondedAt = &now
		if err := tx.SaveCommentResponse(ctx, comment); err != nil {
			return err
		}
		s.record(ctx, tx, commentAudit(period, p.UserID, "comment.respond", comment))
		return nil
	})
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func commentAudit(period Period, actorID int64, action string, c Comment) audit.Record {
	return audit.Record{Entries: []audit.Entry{{
		CompanyID: period.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "review_comment",
		EntityID:  strconv.FormatInt(c.ID, 10),
		Meta:      map[string]any{"item": c.ItemID, "kind": string(c.Kind)},
	}}}
}
