package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/alterflow/types"
)

func promptTestBuilder(historyLimit int) *PromptBuilder {
	return NewPromptBuilder(map[types.Phase]string{
		types.PhaseBrainstorm: "Generate creative ideas.",
		types.PhaseVote:       "Provide your final recommendation.",
	}, historyLimit)
}

func promptTestAlter() types.Alter {
	return types.Alter{
		ID:           "arch-1",
		Name:         "Architect",
		Competencies: "Distributed systems architecture.",
		Examples:     []string{"Favor boring technology."},
		Team:         "arch_team",
	}
}

func TestPromptBuilder_Brainstorm(t *testing.T) {
	b := promptTestBuilder(5)
	rc := &types.RunContext{Question: "How do we scale?"}

	prompt := b.Build(promptTestAlter(), types.PhaseBrainstorm, rc, nil)

	assert.Contains(t, prompt, "You are Architect, an expert with the following competencies: Distributed systems architecture.")
	assert.Contains(t, prompt, "Example of how you speak: Favor boring technology.")
	assert.Contains(t, prompt, "Question: How do we scale?")
	assert.Contains(t, prompt, "Current phase: Brainstorm")
	assert.Contains(t, prompt, "Instructions: Generate creative ideas.")
	assert.NotContains(t, prompt, "Previous contributions", "Brainstorm 不携带先前贡献")
}

func TestPromptBuilder_RetrievalBlockOnlyWhenEnabled(t *testing.T) {
	b := promptTestBuilder(5)
	alter := promptTestAlter()

	withRetrieval := &types.RunContext{
		Question:         "q",
		UseRetrieval:     true,
		RetrievedContext: "sharding splits rows across nodes",
	}
	prompt := b.Build(alter, types.PhaseBrainstorm, withRetrieval, nil)
	assert.Contains(t, prompt, "Relevant context from the knowledge base:")
	assert.Contains(t, prompt, "sharding splits rows")

	withoutRetrieval := &types.RunContext{
		Question:         "q",
		UseRetrieval:     false,
		RetrievedContext: "stale context",
	}
	prompt = b.Build(alter, types.PhaseBrainstorm, withoutRetrieval, nil)
	assert.NotContains(t, prompt, "Relevant context")
}

func TestPromptBuilder_PriorContributionsWithHistoryLimit(t *testing.T) {
	b := promptTestBuilder(2)
	rc := &types.RunContext{Question: "q"}

	prior := []types.Contribution{
		{AlterName: "First", Phase: types.PhaseBrainstorm, Output: "oldest idea"},
		{AlterName: "Second", Phase: types.PhaseBrainstorm, Output: "middle idea"},
		{AlterName: "Third", Phase: types.PhaseBrainstorm, Output: "newest idea"},
	}
	prompt := b.Build(promptTestAlter(), types.PhaseVote, rc, prior)

	assert.Contains(t, prompt, "Previous contributions from your team:")
	assert.NotContains(t, prompt, "oldest idea", "超出 history limit 的最旧贡献应被裁掉")
	assert.Contains(t, prompt, "middle idea")
	assert.Contains(t, prompt, "newest idea")
}

func TestPromptBuilder_Deterministic(t *testing.T) {
	b := promptTestBuilder(5)
	rc := &types.RunContext{Question: "q", UseRetrieval: true, RetrievedContext: "ctx"}
	prior := []types.Contribution{{AlterName: "A", Phase: types.PhaseBrainstorm, Output: "idea"}}

	first := b.Build(promptTestAlter(), types.PhaseVote, rc, prior)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, b.Build(promptTestAlter(), types.PhaseVote, rc, prior))
	}
}

func TestPriorForTeam_FiltersTeamAndStatus(t *testing.T) {
	record := &types.PhaseRecord{
		Phase: types.PhaseBrainstorm,
		Contributions: []types.Contribution{
			{AlterID: "a1", Team: "arch_team", Status: types.ContributionOK, Output: "keep"},
			{AlterID: "o1", Team: "ops_team", Status: types.ContributionOK, Output: "other team"},
			{AlterID: "a2", Team: "arch_team", Status: types.ContributionFailed, Error: "boom"},
		},
	}

	prior := priorForTeam(record, "arch_team")
	require.Len(t, prior, 1)
	assert.Equal(t, "keep", prior[0].Output)

	assert.Nil(t, priorForTeam(nil, "arch_team"))
}
