package domain

import (
	"fmt"
	"strings"
)

// Cache key prefixes. Keys sharing a prefix are invalidated together.
const (
	quizListPrefix          = "quizzes:list"
	quizDetailPrefix        = "quizzes:detail"
	quizLeaderboardPrefix   = "leaderboard:quiz"
	globalLeaderboardPrefix = "leaderboard:global"
)

func QuizListKey(includeUnpublished bool, req PageRequest) string {
	scope := "public"
	if includeUnpublished {
		scope = "all"
	}
	return fmt.Sprintf("%s:%s:%d:%d", quizListPrefix, scope, req.Page, req.PageSize)
}

func QuizListPattern() string {
	return quizListPrefix + ":*"
}

func QuizDetailKey(quizID string) string {
	return fmt.Sprintf("%s:%s", quizDetailPrefix, quizID)
}

func QuizLeaderboardKey(quizID string, req PageRequest) string {
	return fmt.Sprintf("%s:%s:%d:%d", quizLeaderboardPrefix, quizID, req.Page, req.PageSize)
}

// QuizLeaderboardPattern matches every cached page of one quiz's leaderboard.
func QuizLeaderboardPattern(quizID string) string {
	return fmt.Sprintf("%s:%s:*", quizLeaderboardPrefix, escapeGlob(quizID))
}

func GlobalLeaderboardKey(req PageRequest) string {
	return fmt.Sprintf("%s:%d:%d", globalLeaderboardPrefix, req.Page, req.PageSize)
}

func GlobalLeaderboardPattern() string {
	return globalLeaderboardPrefix + ":*"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes the characters that Redis SCAN MATCH and path.Match treat
// as wildcards so an id only ever matches itself.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
