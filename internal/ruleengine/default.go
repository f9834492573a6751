package ruleengine

// DefaultSpec returns the reference lifecycle configuration.
// Rules are listed in priority order: progression, risk, re-engagement,
// churn, recovery.
func DefaultSpec() CatalogSpec {
	return CatalogSpec{
		Rules: []TransitionRule{
			// --- Progression ---
			{
				ID:    "progression_active_to_progressing",
				Name:  "Learner is progressing through the course",
				Group: GroupProgression,
				From:  []StatusTag{TagActiveLearning},
				To:    TagProgressing,
				Conditions: []Condition{
					When(MetricModulesCompleted, OpGreaterOrEqual, 3),
					When(MetricAssessmentScoreAvg, OpGreaterOrEqual, 70),
					When(MetricDaysSinceEnrollment, OpLessOrEqual, 60),
				},
				ManualOverrideAllowed: true,
				Notification:          Notification{Team: "learning-success", Priority: "low", Template: "progress_milestone"},
			},
			{
				ID:    "progression_progressing_to_mastery",
				Name:  "Learner reached mastery",
				Group: GroupProgression,
				From:  []StatusTag{TagProgressing},
				To:    TagMastery,
				Conditions: []Condition{
					When(MetricCourseCompletionRate, OpGreaterOrEqual, 0.9),
					When(MetricAssessmentScoreAvg, OpGreaterOrEqual, 85),
				},
				ManualOverrideAllowed: true,
				Notification:          Notification{Team: "learning-success", Priority: "medium", Template: "mastery_achieved"},
			},

			// --- Risk detection ---
			{
				ID:    "risk_learning_declining",
				Name:  "Engagement dropped while learning",
				Group: GroupRisk,
				From:  []StatusTag{TagActiveLearning, TagProgressing},
				To:    TagDecliningRisk,
				Conditions: []Condition{
					When(MetricDaysSinceLastLogin, OpGreaterOrEqual, 14),
					When(MetricEngagementDelta, OpLessOrEqual, -0.3),
				},
				ManualOverrideAllowed: true,
				Notification:          Notification{Team: "customer-success", Priority: "high", Template: "at_risk_alert"},
			},
			{
				ID:    "risk_mastery_declining",
				Name:  "Mastery learner disengaging",
				Group: GroupRisk,
				From:  []StatusTag{TagMastery},
				To:    TagDecliningRisk,
				Conditions: []Condition{
					When(MetricDaysSinceLastLogin, OpGreaterOrEqual, 30),
					When(MetricAssessmentScoreAvg, OpLess, 70),
				},
				ManualOverrideAllowed: true,
				Notification:          Notification{Team: "customer-success", Priority: "high", Template: "at_risk_alert"},
			},

			// --- Re-engagement ---
			{
				ID:    "reengagement_outreach",
				Name:  "At-risk learner came back",
				Group: GroupReengagement,
				From:  []StatusTag{TagDecliningRisk},
				To:    TagReengagement,
				Conditions: []Condition{
					When(MetricDaysSinceLastLogin, OpLessOrEqual, 3),
					When(MetricSessionsLast7Days, OpGreaterOrEqual, 2),
				},
				ManualOverrideAllowed: true,
				Notification:          Notification{Team: "customer-success", Priority: "medium", Template: "reengagement_started"},
			},

			// --- Churn ---
			{
				ID:    "churn_declining_lapsed",
				Name:  "At-risk learner lapsed",
				Group: GroupChurn,
				From:  []StatusTag{TagDecliningRisk},
				To:    TagChurned,
				Conditions: []Condition{
					When(MetricDaysSinceLastLogin, OpGreaterOrEqual, 60),
					WhenIn(MetricSubscriptionStatus, "cancelled", "expired"),
				},
				Notification: Notification{Team: "retention", Priority: "high", Template: "churn_confirmed"},
			},
			{
				ID:    "churn_reengagement_failed",
				Name:  "Re-engagement did not stick",
				Group: GroupChurn,
				From:  []StatusTag{TagReengagement},
				To:    TagChurned,
				Conditions: []Condition{
					When(MetricDaysSinceLastLogin, OpGreaterOrEqual, 45),
					When(MetricSessionsLast7Days, OpEqual, 0),
				},
				Notification: Notification{Team: "retention", Priority: "high", Template: "churn_confirmed"},
			},

			// --- Recovery ---
			{
				ID:    "recovery_reengaged_active",
				Name:  "Re-engaged learner is active again",
				Group: GroupRecovery,
				From:  []StatusTag{TagReengagement},
				To:    TagActiveLearning,
				Conditions: []Condition{
					When(MetricSessionsLast7Days, OpGreaterOrEqual, 3),
					When(MetricEngagementDelta, OpGreaterOrEqual, 0.1),
				},
				ManualOverrideAllowed: true,
				Notification:          Notification{Team: "learning-success", Priority: "low", Template: "welcome_back"},
			},
		},
		CriticalTags: []StatusTag{TagDecliningRisk},
		TagActions: map[StatusTag][]Action{
			TagActiveLearning: {{Kind: ActionNotify}},
			TagProgressing:    {{Kind: ActionNotify}, {Kind: ActionUnlockContent, Target: "advanced-modules"}},
			TagMastery:        {{Kind: ActionNotify}, {Kind: ActionIssueCertificate}},
			TagDecliningRisk:  {{Kind: ActionNotify}},
			TagReengagement:   {{Kind: ActionNotify}, {Kind: ActionStartCampaign, Target: "win-back"}},
			TagChurned:        {{Kind: ActionNotify}},
		},
	}
}

// DefaultCatalog returns the validated reference catalog.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultSpec())
}
