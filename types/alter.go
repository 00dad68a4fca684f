package types

// Priority 表示 Alter 的优先级，影响其在提示词中的自我描述。
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Alter 表示一个具有特定能力与人格的模拟专家角色。
// 配置加载完成后不可变；一个 Alter 归属且仅归属一个 Team。
type Alter struct {
	// 唯一标识
	ID string `yaml:"id" json:"id"`
	// 展示名称
	Name string `yaml:"name" json:"name"`
	// 优先级
	Priority Priority `yaml:"priority" json:"priority"`
	// 能力描述（自然语言，同时参与 Team 匹配打分）
	Competencies string `yaml:"competencies" json:"competencies"`
	// 示例发言
	Examples []string `yaml:"examples" json:"examples,omitempty"`
	// 所属 Team 名称（由 Registry 在加载时回填）
	Team string `yaml:"-" json:"team"`
}

// Team 表示共享同一能力域的一组 Alter。
// 声明顺序有意义：打分平局与 Transcript 排序都按声明顺序裁决。
type Team struct {
	// Team 名称
	Name string `yaml:"name" json:"name"`
	// 能力域描述
	Description string `yaml:"description" json:"description"`
	// 匹配关键词（用于 Team Assignment）
	Keywords []string `yaml:"keywords" json:"keywords,omitempty"`
	// 成员（有序）
	Alters []Alter `yaml:"alters" json:"alters"`
}

// Registry 是经过校验的 Team/Alter 注册表。
// 进程启动时一次性加载，运行期间只读。
type Registry struct {
	// Teams 保持声明顺序
	Teams []Team
	// DefaultTeam 兜底 Team 名称：没有任何 Team 过线时选它
	DefaultTeam string

	byTeam  map[string]*Team
	byAlter map[string]*Alter
}

// NewRegistry builds a validated registry from the given teams.
// Validation is fail-fast: duplicate team names, duplicate alter IDs, empty
// teams and an unknown default team are all rejected with ErrConfig.
func NewRegistry(teams []Team, defaultTeam string) (*Registry, error) {
	if len(teams) == 0 {
		return nil, NewError(ErrConfig, "registry requires at least one team")
	}

	r := &Registry{
		Teams:       teams,
		DefaultTeam: defaultTeam,
		byTeam:      make(map[string]*Team, len(teams)),
		byAlter:     make(map[string]*Alter),
	}

	for i := range r.Teams {
		team := &r.Teams[i]
		if team.Name == "" {
			return nil, NewError(ErrConfig, "team name cannot be empty")
		}
		if _, dup := r.byTeam[team.Name]; dup {
			return nil, NewError(ErrConfig, "duplicate team name: "+team.Name)
		}
		if len(team.Alters) == 0 {
			return nil, NewError(ErrConfig, "team has no alters: "+team.Name)
		}
		r.byTeam[team.Name] = team

		for j := range team.Alters {
			alter := &team.Alters[j]
			if alter.ID == "" {
				return nil, NewError(ErrConfig, "alter id cannot be empty in team "+team.Name)
			}
			if _, dup := r.byAlter[alter.ID]; dup {
				return nil, NewError(ErrConfig, "duplicate alter id: "+alter.ID)
			}
			if alter.Name == "" {
				alter.Name = alter.ID
			}
			if alter.Priority == "" {
				alter.Priority = PriorityMedium
			}
			alter.Team = team.Name
			r.byAlter[alter.ID] = alter
		}
	}

	if defaultTeam == "" {
		return nil, NewError(ErrConfig, "default team must be configured")
	}
	if _, ok := r.byTeam[defaultTeam]; !ok {
		return nil, NewError(ErrConfig, "default team not found in registry: "+defaultTeam)
	}

	return r, nil
}

// Team returns the team with the given name, or nil.
func (r *Registry) Team(name string) *Team {
	return r.byTeam[name]
}

// Alter returns the alter with the given ID, or nil.
func (r *Registry) Alter(id string) *Alter {
	return r.byAlter[id]
}

// AltersFor 按 Team 声明顺序、Team 内成员声明顺序展开给定 Team 的全部成员。
// 该顺序即 Transcript 的稳定写入顺序。
func (r *Registry) AltersFor(teamNames []string) []Alter {
	selected := make(map[string]bool, len(teamNames))
	for _, name := range teamNames {
		selected[name] = true
	}

	var alters []Alter
	for i := range r.Teams {
		if !selected[r.Teams[i].Name] {
			continue
		}
		alters = append(alters, r.Teams[i].Alters...)
	}
	return alters
}
