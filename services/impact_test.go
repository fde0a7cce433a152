package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildImpactReportAggregatesSubtreeTotals(t *testing.T) {
	root, children := threeLevelTree()
	tree, err := walkSubtree(root, mapFetcher(children), nil)
	require.NoError(t, err)

	counts := &dependentCounts{
		users:    map[uint]int64{1: 2, 4: 5, 6: 1},
		students: map[uint]int64{4: 100, 5: 80, 6: 60},
		rooms:    map[uint]int64{4: 10},
	}

	report := buildImpactReport(tree, counts)

	assert.Equal(t, uint(1), report.Institution.ID)
	assert.Equal(t, 2, report.DirectChildrenCount)
	assert.Equal(t, 5, report.TotalChildrenCount)

	// Direct counts cover only rows on the node itself; totals roll up
	// every visible descendant, grandchildren included.
	assert.Equal(t, int64(2), report.UsersCount)
	assert.Equal(t, int64(8), report.TotalUsersCount)
	assert.Equal(t, int64(0), report.StudentsCount)
	assert.Equal(t, int64(240), report.TotalStudentsCount)

	require.Len(t, report.ChildrenDetails, 2)
	sectorA := report.ChildrenDetails[0]
	assert.Equal(t, uint(2), sectorA.Institution.ID)
	assert.Equal(t, 2, sectorA.TotalChildrenCount)
	assert.Equal(t, int64(5), sectorA.TotalUsersCount)
	assert.Equal(t, int64(180), sectorA.TotalStudentsCount)

	// Rooms are reported per node, not rolled up.
	assert.Equal(t, int64(0), report.RoomsCount)
	assert.Equal(t, int64(10), sectorA.ChildrenDetails[0].RoomsCount)
}

func TestBuildImpactReportFlagsOutOfScopeNodes(t *testing.T) {
	root, children := threeLevelTree()
	scope := Scope{1: {}, 2: {}, 4: {}, 5: {}}
	tree, err := walkSubtree(root, mapFetcher(children), scope)
	require.NoError(t, err)

	report := buildImpactReport(tree, &dependentCounts{})

	assert.Equal(t, 3, report.TotalChildrenCount, "hidden subtree is excluded from totals")
	assert.Equal(t, 1, report.OutOfScopeCount)
}

func TestImpactReportIsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		report DeleteImpactReport
		want   bool
	}{
		{"bare node", DeleteImpactReport{}, true},
		{"audit trail only", DeleteImpactReport{AuditLogsCount: 3}, true},
		{"has children", DeleteImpactReport{TotalChildrenCount: 1}, false},
		{"has users", DeleteImpactReport{TotalUsersCount: 1}, false},
		{"has students somewhere below", DeleteImpactReport{TotalStudentsCount: 4}, false},
		{"has rooms", DeleteImpactReport{RoomsCount: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.IsEmpty())
		})
	}
}

func TestMetadataFromImpactFreezesCounts(t *testing.T) {
	report := &DeleteImpactReport{
		DirectChildrenCount: 3,
		TotalChildrenCount:  9,
		TotalUsersCount:     12,
		TotalStudentsCount:  300,
		RoomsCount:          4,
		AuditLogsCount:      7,
	}

	meta := metadataFromImpact(report)

	assert.Equal(t, 3, meta.ChildrenCount, "children_count reports direct children")
	assert.Equal(t, 9, meta.TotalChildrenCount)
	assert.Equal(t, int64(12), meta.UsersCount)
	assert.Equal(t, int64(300), meta.StudentsCount)
	assert.Equal(t, int64(4), meta.RoomsCount)
	assert.Equal(t, int64(7), meta.AuditLogsCount)
}
