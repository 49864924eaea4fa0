package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// authEvents counts credential operations by principal kind, operation
	// (register/login/refresh/logout/password) and outcome (ok/fail).
	authEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serviceflow_auth_events_total",
			Help: "Credential and token operations by kind, operation and outcome.",
		},
		[]string{"kind", "op", "outcome"},
	)

	// voteTransitions counts vote state-machine transitions per target kind.
	// transition is one of cast, retract, switch.
	voteTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serviceflow_vote_transitions_total",
			Help: "Vote ledger transitions by target kind and transition.",
		},
		[]string{"target", "transition"},
	)

	// serviceVotes counts service upvote adds and removals.
	serviceVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serviceflow_service_votes_total",
			Help: "Service upvote additions and removals.",
		},
		[]string{"op"},
	)

	// likeToggles counts like/unlike operations per like target.
	likeToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serviceflow_like_toggles_total",
			Help: "Like toggles by like target and resulting state.",
		},
		[]string{"target", "state"},
	)
)

func init() {
	prometheus.MustRegister(authEvents, voteTransitions, serviceVotes, likeToggles)
}

func outcome(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}
