package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTeams() []Team {
	return []Team{
		{
			Name:        "backend_team",
			Description: "Backend services, databases and APIs",
			Keywords:    []string{"backend", "database", "api"},
			Alters: []Alter{
				{ID: "a1", Name: "Backend Architect", Competencies: "service design"},
				{ID: "a2", Name: "Data Engineer", Competencies: "storage and pipelines"},
			},
		},
		{
			Name:        "frontend_team",
			Description: "UI and user experience",
			Keywords:    []string{"frontend", "ui"},
			Alters: []Alter{
				{ID: "b1", Name: "UI Specialist", Competencies: "interface design"},
			},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(testTeams(), "backend_team")
	require.NoError(t, err)

	// Team/Alter 均可按名索引
	assert.NotNil(t, r.Team("backend_team"))
	assert.NotNil(t, r.Alter("b1"))
	assert.Nil(t, r.Team("nope"))

	// 所属 Team 在加载时回填
	assert.Equal(t, "backend_team", r.Alter("a2").Team)
	// 未指定优先级时取 Medium
	assert.Equal(t, PriorityMedium, r.Alter("a1").Priority)
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name        string
		teams       []Team
		defaultTeam string
	}{
		{"empty registry", nil, "backend_team"},
		{"duplicate team", append(testTeams(), Team{Name: "backend_team", Alters: []Alter{{ID: "x"}}}), "backend_team"},
		{"duplicate alter", append(testTeams(), Team{Name: "ops", Alters: []Alter{{ID: "a1"}}}), "backend_team"},
		{"team without alters", []Team{{Name: "empty"}}, "empty"},
		{"unknown default team", testTeams(), "ghost_team"},
		{"missing default team", testTeams(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.teams, tt.defaultTeam)
			require.Error(t, err)
			assert.Equal(t, ErrConfig, GetErrorCode(err))
		})
	}
}

func TestRegistry_AltersFor(t *testing.T) {
	r, err := NewRegistry(testTeams(), "backend_team")
	require.NoError(t, err)

	// 无论入参顺序如何，展开顺序都是声明顺序
	alters := r.AltersFor([]string{"frontend_team", "backend_team"})
	require.Len(t, alters, 3)
	assert.Equal(t, "a1", alters[0].ID)
	assert.Equal(t, "a2", alters[1].ID)
	assert.Equal(t, "b1", alters[2].ID)

	assert.Empty(t, r.AltersFor(nil))
	assert.Empty(t, r.AltersFor([]string{"ghost"}))
}
