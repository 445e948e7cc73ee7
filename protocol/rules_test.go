package protocol

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)
	assert.NotEmpty(t, rules.Version)
	assert.Len(t, rules.Tiers, 2)
}

func TestRules_Priority(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)

	tests := []struct {
		name  string
		base  int
		texts []string
		want  int
	}{
		{"no match keeps base", 4, []string{"sunny afternoon"}, 4},
		{"emergency tier", 4, []string{"patient is unconscious"}, 1},
		{"urgent tier", 5, []string{"knee pain"}, 2},
		{"urgent never lowers urgency", 1, []string{"knee pain"}, 1},
		{"both tiers", 3, []string{"fall", "heavy bleeding"}, 1},
		{"keywords match case folded text", 4, []string{"cardiac arrest suspected"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.Priority(tt.base, tt.texts))
		})
	}
}

func TestRules_RecommendUnits(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)

	got := rules.RecommendUnits([]string{"EMS"}, []string{"smoke near the trail", "chest pain", "a fight broke out"})
	assert.Equal(t, []string{"EMS", "Fire", "Search_Rescue", "Security"}, got)

	assert.Equal(t, []string{}, rules.RecommendUnits(nil, []string{"quiet"}))
}

func TestRules_PlanUnits(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)

	assert.Equal(t, []string{"EMS", "Fire"}, rules.PlanUnits("Dispatch fire engine and EMS standby."))
	assert.Equal(t, []string{"Search_Rescue"}, rules.PlanUnits("Start search and rescue grid"))
	assert.Empty(t, rules.PlanUnits(""))
}

func TestRules_ResponsePlan(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)

	plan := rules.ResponsePlan("Dispatch EMS.", []string{"unconscious", "still unconscious", "bleeding from arm"})
	assert.Equal(t, "Dispatch EMS.\n"+
		"- Check for responsiveness and breathing\n"+
		"- Begin CPR if necessary\n"+
		"- Apply direct pressure to wound\n"+
		"- Elevate if possible", plan)
	assert.Equal(t, "Dispatch EMS.", rules.ResponsePlan("Dispatch EMS.", []string{"fine"}))
}

func TestParseRules_Rejects(t *testing.T) {
	_, err := ParseRules([]byte("priority_tiers:\n  - name: odd\n    priority: 9\n    keywords: [x]\nunits:\n  - keywords: [y]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version is required")
	assert.Contains(t, err.Error(), `tier "odd" has priority 9`)
	assert.Contains(t, err.Error(), "unit rule without a unit")

	_, err = ParseRules([]byte("version: [unclosed"))
	assert.Error(t, err)
}

func TestLoadRules_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := strings.Join([]string{
		`version: "custom-1"`,
		`priority_tiers:`,
		`  - name: storm`,
		`    priority: 2`,
		`    keywords: [LIGHTNING]`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-1", rules.Version)
	assert.Equal(t, 2, rules.Priority(4, []string{"lightning strike"}))

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	rules, err = LoadRules("")
	require.NoError(t, err)
	assert.Len(t, rules.Directives, 3)
}
