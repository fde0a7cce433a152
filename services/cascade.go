package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edumesh/edumesh-api/model"
	"gorm.io/gorm"
)

// CascadeExecutor performs the staged removal or archival of a subtree.
//
// The pipeline is deliberately not atomic: each stage commits its own
// bounded transaction (one per node), which keeps the failure blast radius
// small at the cost of possibly leaving a partially-cascaded tree behind a
// mid-pipeline failure. There is no compensating rollback and no resume; a
// re-invocation starts from a fresh impact computation over the remaining
// state.
type CascadeExecutor struct {
	db     *gorm.DB
	impact *ImpactService
}

// NewCascadeExecutor creates a new cascade executor
func NewCascadeExecutor(db *gorm.DB, impact *ImpactService) *CascadeExecutor {
	return &CascadeExecutor{db: db, impact: impact}
}

// Dependent tables are cleared in a fixed order before the owning node row
// goes. Users are handled separately because their token blacklist rows
// must be cleared first.
var dependentModels = []struct {
	label string
	model interface{}
}{
	{"survey responses", &model.SurveyResponse{}},
	{"statistics", &model.Statistic{}},
	{"indicator values", &model.IndicatorValue{}},
	{"audit logs", &model.InstitutionAuditLog{}},
	{"rooms", &model.Room{}},
	{"grades", &model.Grade{}},
	{"departments", &model.Department{}},
	{"students", &model.Student{}},
}

// Run drives the operation to a terminal state. Stage plan:
//
//	1. re-validate against a fresh impact report
//	2. snapshot the report into operation metadata
//	3. soft mode: archive the target and its direct children (one stage)
//	   hard mode: one stage per node, deepest first, target last
func (e *CascadeExecutor) Run(h *operationHandle) {
	defer func() {
		if r := recover(); r != nil {
			h.fail(fmt.Errorf("cascade panicked: %v", r))
		}
	}()

	ctx := context.Background()
	institutionID := h.snap.InstitutionID

	// Stage 1: the tree may have changed since the caller fetched its
	// report, so the decision is re-made against live data.
	impact, err := e.impact.ComputeImpact(ctx, institutionID, h.scope)
	if err != nil {
		h.fail(err)
		return
	}
	if errs := ValidateDeleteRequest(h.req, impact); len(errs) > 0 {
		h.fail(&ValidationError{Errors: errs})
		return
	}

	tree, err := e.impact.subtree(ctx, institutionID, h.scope)
	if err != nil {
		h.fail(err)
		return
	}

	nodeStages := 1
	if h.req.Mode == model.DeleteModeHard {
		nodeStages = tree.size()
	}
	h.begin(2 + nodeStages)

	h.stage("re-validating request")
	h.stageDone()

	h.stage("snapshotting impact")
	h.setMetadata(metadataFromImpact(impact))
	h.stageDone()

	if h.req.Mode == model.DeleteModeSoft {
		e.runSoft(ctx, h, tree)
		return
	}
	e.runHard(ctx, h, tree)
}

// runSoft archives the target and its direct children. Deeper descendants
// and dependent records are left untouched; the archive is reversible.
func (e *CascadeExecutor) runSoft(ctx context.Context, h *operationHandle, tree *subtree) {
	h.stage("archiving institution")

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		archive := map[string]interface{}{"is_active": false, "archived_at": now}

		if err := tx.Model(&model.Institution{}).
			Where("parent_id = ? AND archived_at IS NULL", tree.root.ID).
			Updates(archive).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Institution{}).
			Where("id = ?", tree.root.ID).
			Updates(archive).Error; err != nil {
			return err
		}
		return e.writeAuditLog(tx, tree.root, "archived", fmt.Sprintf("Institution %q archived with its direct children", tree.root.Name), h.req.Reason)
	})
	if err != nil {
		h.fail(fmt.Errorf("archiving failed: %w", err))
		return
	}

	h.stageDone()
	h.complete("institution archived; it can be restored when needed")
}

// runHard removes the subtree bottom-up, one transaction per node.
// Siblings are processed sequentially; nothing proves their cascades are
// independent.
func (e *CascadeExecutor) runHard(ctx context.Context, h *operationHandle, tree *subtree) {
	// Preserve the trail before anything goes: the initiation entry hangs
	// off the parent so it survives the removal of the target itself.
	if err := e.writeInitiationLog(ctx, tree.root, h.req.Reason); err != nil {
		h.warn(fmt.Sprintf("could not record hard-delete audit entry: %v", err))
	}

	for _, id := range tree.bottomUp() {
		node := tree.nodes[id]
		h.stage(fmt.Sprintf("deleting %q (id=%d)", node.Name, node.ID))

		warnings, err := e.deleteNode(ctx, node)
		if err != nil {
			h.fail(fmt.Errorf("deleting institution %d: %w", node.ID, err))
			return
		}
		for _, w := range warnings {
			h.warn(w)
		}
		h.stageDone()
	}

	h.complete("institution and all dependent records permanently deleted")
}

// deleteNode removes one node and everything attached to it inside a
// single transaction. Returned warnings are non-fatal anomalies observed
// after the transaction committed.
func (e *CascadeExecutor) deleteNode(ctx context.Context, node treeNode) ([]string, error) {
	var warnings []string

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Accounts first: blacklist rows reference users, users reference
		// the institution.
		var userIDs []uint
		if err := tx.Model(&model.User{}).Unscoped().
			Where("institution_id = ?", node.ID).
			Pluck("id", &userIDs).Error; err != nil {
			return err
		}
		if len(userIDs) > 0 {
			if err := tx.Where("user_id IN ?", userIDs).
				Delete(&model.JWTTokenBlacklist{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().
				Where("institution_id = ?", node.ID).
				Delete(&model.User{}).Error; err != nil {
				return err
			}
		}

		for _, dep := range dependentModels {
			if err := tx.Unscoped().
				Where("institution_id = ?", node.ID).
				Delete(dep.model).Error; err != nil {
				return fmt.Errorf("deleting %s: %w", dep.label, err)
			}
		}

		res := tx.Unscoped().Where("id = ?", node.ID).Delete(&model.Institution{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			warnings = append(warnings, fmt.Sprintf("institution %d was already gone when its stage ran", node.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}

// writeInitiationLog records the hard delete against the target's parent
// (or the target itself for a root) in its own small transaction.
func (e *CascadeExecutor) writeInitiationLog(ctx context.Context, root treeNode, reason string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		anchor := root
		if root.ParentID != nil {
			var parent model.Institution
			if err := tx.Unscoped().First(&parent, *root.ParentID).Error; err == nil {
				anchor = treeNode{ID: parent.ID, Name: parent.Name}
			}
		}
		desc := fmt.Sprintf("Hard delete started for %q (original id: %d) and its subtree", root.Name, root.ID)
		return e.writeAuditLogTo(tx, anchor.ID, root, "hard_delete_initiated", desc, reason)
	})
}

func (e *CascadeExecutor) writeAuditLog(tx *gorm.DB, node treeNode, action, description, reason string) error {
	return e.writeAuditLogTo(tx, node.ID, node, action, description, reason)
}

func (e *CascadeExecutor) writeAuditLogTo(tx *gorm.DB, institutionID uint, node treeNode, action, description, reason string) error {
	oldValues, _ := json.Marshal(map[string]interface{}{
		"id":     node.ID,
		"name":   node.Name,
		"type":   node.Type,
		"level":  node.Level,
		"reason": reason,
	})
	entry := model.InstitutionAuditLog{
		InstitutionID: institutionID,
		Action:        action,
		OldValues:     string(oldValues),
		Description:   description,
	}
	return tx.Create(&entry).Error
}
