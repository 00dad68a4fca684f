package orchestrator

import (
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/alterflow/types"
)

// Assignment 是 Team Assignment 的结果。
type Assignment struct {
	// Teams 按得分降序，平局按声明顺序
	Teams []types.TeamScore
	// Alters 按 Team 声明顺序、Team 内声明顺序展开的参与者
	Alters []types.Alter
	// UsedDefault 标记没有 Team 过线、选用了兜底 Team
	UsedDefault bool
}

// TeamAssigner 根据问题文本为运行挑选参与 Team。
// 打分完全确定：相同输入永远产出相同结果。
type TeamAssigner struct {
	registry  *types.Registry
	threshold int
	logger    *zap.Logger
}

// NewTeamAssigner 创建 Team 分配器。threshold 为过线分数。
func NewTeamAssigner(registry *types.Registry, threshold int, logger *zap.Logger) *TeamAssigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamAssigner{
		registry:  registry,
		threshold: threshold,
		logger:    logger.With(zap.String("component", "assigner")),
	}
}

// Assign 为问题打分并选出参与 Team。
// 得分 = 问题中命中的不同关键词数；多词关键词按子串匹配，
// 单词关键词与描述/能力词汇按 token 重合匹配。
// 没有 Team 过线时返回配置的兜底 Team，运行永远不会零参与。
func (a *TeamAssigner) Assign(question string) Assignment {
	questionLower := strings.ToLower(question)
	questionTokens := tokenSet(questionLower)

	type scored struct {
		name  string
		score int
		order int
	}

	all := make([]scored, 0, len(a.registry.Teams))
	for i := range a.registry.Teams {
		team := &a.registry.Teams[i]
		all = append(all, scored{
			name:  team.Name,
			score: a.scoreTeam(team, questionLower, questionTokens),
			order: i,
		})
	}

	selected := make([]scored, 0, len(all))
	for _, s := range all {
		if s.score >= a.threshold && s.score > 0 {
			selected = append(selected, s)
		}
	}

	usedDefault := false
	if len(selected) == 0 {
		usedDefault = true
		for _, s := range all {
			if s.name == a.registry.DefaultTeam {
				selected = append(selected, s)
				break
			}
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].score != selected[j].score {
			return selected[i].score > selected[j].score
		}
		return selected[i].order < selected[j].order
	})

	result := Assignment{UsedDefault: usedDefault}
	teamNames := make([]string, 0, len(selected))
	for _, s := range selected {
		result.Teams = append(result.Teams, types.TeamScore{Team: s.name, Score: s.score})
		teamNames = append(teamNames, s.name)
	}
	result.Alters = a.registry.AltersFor(teamNames)

	a.logger.Debug("teams assigned",
		zap.Int("teams", len(result.Teams)),
		zap.Int("alters", len(result.Alters)),
		zap.Bool("used_default", usedDefault))

	return result
}

// scoreTeam 统计问题命中的不同匹配词数。
func (a *TeamAssigner) scoreTeam(team *types.Team, questionLower string, questionTokens map[string]bool) int {
	score := 0
	seen := make(map[string]bool)

	match := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			return
		}
		hit := false
		if strings.ContainsRune(term, ' ') {
			hit = strings.Contains(questionLower, term)
		} else {
			hit = questionTokens[term]
		}
		if hit {
			seen[term] = true
			score++
		}
	}

	for _, kw := range team.Keywords {
		match(kw)
	}
	for tok := range tokenSet(strings.ToLower(team.Description)) {
		match(tok)
	}
	for i := range team.Alters {
		for tok := range tokenSet(strings.ToLower(team.Alters[i].Competencies)) {
			match(tok)
		}
	}
	return score
}

// tokenSet 切出长度 >= 4 的小写 token，滤掉 and/the 之类的噪声词。
func tokenSet(text string) map[string]bool {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if len(tok) >= 4 {
			set[tok] = true
		}
	}
	return set
}
