package controlapi

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// handleListRules processes GET /api/v1/rules. Rules are returned in
// catalog order, which is also the tie-break order.
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	catalog := a.lifecycle.Catalog()
	spec := catalog.Spec()

	views := make([]RuleView, len(spec.Rules))
	for i, rule := range spec.Rules {
		names := make([]string, len(rule.From))
		for j, tag := range rule.From {
			names[j] = tag.Name()
		}
		views[i] = RuleView{TransitionRule: rule, FromNames: names, ToName: rule.To.Name()}
	}

	critical := spec.CriticalTags
	if critical == nil {
		critical = []ruleengine.StatusTag{}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RulesResponse{
		Rules:        views,
		CriticalTags: critical,
		TerminalTags: catalog.TerminalTags(),
	})
}
