package services

import (
	"context"
	"errors"

	"github.com/edumesh/edumesh-api/model"
	"gorm.io/gorm"
)

// ImpactService computes the blast radius of deleting an institution: every
// transitive child plus the counts of every dependent record category.
// Computation is side-effect free and always runs against live data, so a
// report is never acted on stale.
type ImpactService struct {
	db *gorm.DB
}

// NewImpactService creates a new impact analyzer
func NewImpactService(db *gorm.DB) *ImpactService {
	return &ImpactService{db: db}
}

// InstitutionSummary identifies the node a report section describes.
type InstitutionSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Level int    `json:"level"`
}

// DeleteImpactReport is the full blast radius for one node. "Total" counts
// cover the entire visible subtree; their direct counterparts cover only
// rows attached to this exact node.
type DeleteImpactReport struct {
	Institution          InstitutionSummary    `json:"institution"`
	DirectChildrenCount  int                   `json:"direct_children_count"`
	TotalChildrenCount   int                   `json:"total_children_count"`
	ChildrenDetails      []*DeleteImpactReport `json:"children_details"`
	UsersCount           int64                 `json:"users_count"`
	TotalUsersCount      int64                 `json:"total_users_count"`
	StudentsCount        int64                 `json:"students_count"`
	TotalStudentsCount   int64                 `json:"total_students_count"`
	DepartmentsCount     int64                 `json:"departments_count"`
	RoomsCount           int64                 `json:"rooms_count"`
	GradesCount          int64                 `json:"grades_count"`
	SurveyResponsesCount int64                 `json:"survey_responses_count"`
	StatisticsCount      int64                 `json:"statistics_count"`
	IndicatorValuesCount int64                 `json:"indicator_values_count"`
	AuditLogsCount       int64                 `json:"audit_logs_count"`
	OutOfScopeCount      int                   `json:"out_of_scope_count,omitempty"`
}

// IsEmpty reports whether deleting the node would affect nothing but the
// node itself. Audit log entries are deliberately ignored here: almost
// every node carries a creation entry and the trail is removed alongside
// the node anyway, so counting it would defeat the fast path.
func (r *DeleteImpactReport) IsEmpty() bool {
	return r.TotalChildrenCount == 0 &&
		r.TotalUsersCount == 0 &&
		r.TotalStudentsCount == 0 &&
		r.DepartmentsCount == 0 &&
		r.RoomsCount == 0 &&
		r.GradesCount == 0 &&
		r.SurveyResponsesCount == 0 &&
		r.StatisticsCount == 0 &&
		r.IndicatorValuesCount == 0
}

// dependentCounts holds per-institution row counts for each dependent table.
type dependentCounts struct {
	users           map[uint]int64
	students        map[uint]int64
	departments     map[uint]int64
	rooms           map[uint]int64
	grades          map[uint]int64
	surveyResponses map[uint]int64
	statistics      map[uint]int64
	indicatorValues map[uint]int64
	auditLogs       map[uint]int64
}

// ComputeImpact builds a fresh report for the subtree rooted at
// institutionID, restricted to what scope allows the caller to see. A node
// outside scope is reported as not found, identically to a missing one.
func (s *ImpactService) ComputeImpact(ctx context.Context, institutionID uint, scope Scope) (*DeleteImpactReport, error) {
	tree, err := s.subtree(ctx, institutionID, scope)
	if err != nil {
		return nil, err
	}

	counts, err := s.countDependents(ctx, tree.ids())
	if err != nil {
		return nil, err
	}

	return buildImpactReport(tree, counts), nil
}

// subtree loads the target node and walks its visible subtree. Archived
// nodes are included: a hard delete must account for them too.
func (s *ImpactService) subtree(ctx context.Context, institutionID uint, scope Scope) (*subtree, error) {
	if !scope.Allows(institutionID) {
		return nil, ErrInstitutionNotFound
	}

	var inst model.Institution
	if err := s.db.WithContext(ctx).Unscoped().First(&inst, institutionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstitutionNotFound
		}
		return nil, err
	}

	root := treeNode{ID: inst.ID, ParentID: inst.ParentID, Name: inst.Name, Type: inst.Type, Level: inst.Level}
	return walkSubtree(root, fetchInstitutionChildren(ctx, s.db), scope)
}

// fetchInstitutionChildren returns a childFetcher issuing one batched query
// per tree level.
func fetchInstitutionChildren(ctx context.Context, db *gorm.DB) childFetcher {
	return func(parentIDs []uint) ([]treeNode, error) {
		var rows []model.Institution
		if err := db.WithContext(ctx).Unscoped().
			Select("id", "parent_id", "name", "type", "level").
			Where("parent_id IN ?", parentIDs).
			Find(&rows).Error; err != nil {
			return nil, err
		}

		nodes := make([]treeNode, 0, len(rows))
		for _, r := range rows {
			nodes = append(nodes, treeNode{ID: r.ID, ParentID: r.ParentID, Name: r.Name, Type: r.Type, Level: r.Level})
		}
		return nodes, nil
	}
}

func (s *ImpactService) countDependents(ctx context.Context, ids []uint) (*dependentCounts, error) {
	c := &dependentCounts{}

	// Users are counted live only: the soft-delete gate cares about active
	// accounts. Everything else includes archived rows, since a hard delete
	// removes those as well.
	var err error
	if c.users, err = s.countByInstitution(ctx, &model.User{}, ids, false); err != nil {
		return nil, err
	}
	if c.students, err = s.countByInstitution(ctx, &model.Student{}, ids, true); err != nil {
		return nil, err
	}
	if c.departments, err = s.countByInstitution(ctx, &model.Department{}, ids, true); err != nil {
		return nil, err
	}
	if c.rooms, err = s.countByInstitution(ctx, &model.Room{}, ids, true); err != nil {
		return nil, err
	}
	if c.grades, err = s.countByInstitution(ctx, &model.Grade{}, ids, true); err != nil {
		return nil, err
	}
	if c.surveyResponses, err = s.countByInstitution(ctx, &model.SurveyResponse{}, ids, true); err != nil {
		return nil, err
	}
	if c.statistics, err = s.countByInstitution(ctx, &model.Statistic{}, ids, true); err != nil {
		return nil, err
	}
	if c.indicatorValues, err = s.countByInstitution(ctx, &model.IndicatorValue{}, ids, true); err != nil {
		return nil, err
	}
	if c.auditLogs, err = s.countByInstitution(ctx, &model.InstitutionAuditLog{}, ids, true); err != nil {
		return nil, err
	}
	return c, nil
}

type institutionCount struct {
	InstitutionID uint
	N             int64
}

// countByInstitution runs one grouped count over all subtree ids instead of
// a query per node.
func (s *ImpactService) countByInstitution(ctx context.Context, m interface{}, ids []uint, includeArchived bool) (map[uint]int64, error) {
	q := s.db.WithContext(ctx).Model(m)
	if includeArchived {
		q = q.Unscoped()
	}

	var rows []institutionCount
	if err := q.
		Select("institution_id, count(*) as n").
		Where("institution_id IN ?", ids).
		Group("institution_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.InstitutionID] = r.N
	}
	return out, nil
}

// buildImpactReport assembles the nested report from the arena and the
// grouped counts. Pure: no queries happen past this point.
func buildImpactReport(t *subtree, c *dependentCounts) *DeleteImpactReport {
	report := reportForNode(t, c, t.root.ID)
	report.OutOfScopeCount = t.outOfScope
	return report
}

func reportForNode(t *subtree, c *dependentCounts, id uint) *DeleteImpactReport {
	node := t.nodes[id]
	r := &DeleteImpactReport{
		Institution: InstitutionSummary{
			ID:    node.ID,
			Name:  node.Name,
			Type:  node.Type,
			Level: node.Level,
		},
		ChildrenDetails:      []*DeleteImpactReport{},
		UsersCount:           c.users[id],
		StudentsCount:        c.students[id],
		DepartmentsCount:     c.departments[id],
		RoomsCount:           c.rooms[id],
		GradesCount:          c.grades[id],
		SurveyResponsesCount: c.surveyResponses[id],
		StatisticsCount:      c.statistics[id],
		IndicatorValuesCount: c.indicatorValues[id],
		AuditLogsCount:       c.auditLogs[id],
	}
	r.TotalUsersCount = r.UsersCount
	r.TotalStudentsCount = r.StudentsCount

	for _, childID := range t.children[id] {
		child := reportForNode(t, c, childID)
		r.ChildrenDetails = append(r.ChildrenDetails, child)
		r.TotalChildrenCount += 1 + child.TotalChildrenCount
		r.TotalUsersCount += child.TotalUsersCount
		r.TotalStudentsCount += child.TotalStudentsCount
	}
	r.DirectChildrenCount = len(t.children[id])

	return r
}
