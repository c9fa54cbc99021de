// Package flows holds the step tables of the guided flows shipped with
// stepwise.
package flows

import (
	"sort"

	"github.com/petrijr/stepwise/pkg/api"
)

// Registry kinds checked by the uniqueness registry.
const (
	KindCampaignName  = "campaign_name"
	KindTriggerPhrase = "trigger_phrase"
)

// Achievements unlocked on the first completion of a flow.
const (
	AchievementFirstCampaign = "first_campaign"
	AchievementFirstBot      = "first_bot"
)

// All returns every built-in flow, sorted by name.
func All() []api.FlowDefinition {
	out := []api.FlowDefinition{Campaign(), Onboarding()}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByName returns the built-in flow called name.
func ByName(name string) (api.FlowDefinition, bool) {
	for _, f := range All() {
		if f.Name == name {
			return f, true
		}
	}
	return api.FlowDefinition{}, false
}

// indexed assigns declared positions to steps.
func indexed(steps ...api.StepDefinition) []api.StepDefinition {
	for i := range steps {
		steps[i].Index = i
	}
	return steps
}
