package domain

const (
	EventNameQuizScored         = "quiz.scored"
	EventNamePathCreated        = "path.created"
	EventNamePathCompleted      = "path.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventQuizScored fires once per quiz submission, after the scored quiz has
// been persisted.
type EventQuizScored struct {
	Quiz Quiz
}

func (EventQuizScored) Name() string { return EventNameQuizScored }

// EventPathCreated fires when a new learning path is persisted.
type EventPathCreated struct {
	Path LearningPath
}

func (EventPathCreated) Name() string { return EventNamePathCreated }

// EventPathCompleted fires the first time a path's completion percent reaches
// 100. The completion-date guard in the reconciler ensures it fires at most
// once per path.
type EventPathCompleted struct {
	Path LearningPath
}

func (EventPathCompleted) Name() string { return EventNamePathCompleted }

// EventLeaderboardUpdated fires after a daily-quiz submission is recorded on
// the leaderboard.
type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
