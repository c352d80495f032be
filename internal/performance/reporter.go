package performance

import (
	"log/slog"
	"maps"
	"slices"
)

// LogReport logs the performance report as structured JSON.
func LogReport(r *Report) {
	slog.Info("=== PERFORMANCE REPORT ===",
		"games_played", r.GamesPlayed,
		"questions_resolved", r.QuestionsResolved,
		"total_bets", r.TotalBets,
		"wagered", r.TotalWagered,
		"fees_collected", r.FeesCollected,
		"settled_positions", r.SettledPositions,
		"win_rate", r.WinRate,
		"avg_reputation", r.AvgReputation,
		"correct_rate", r.CorrectRate,
	)

	for _, role := range slices.Sorted(maps.Keys(r.RoleStats)) {
		stats := r.RoleStats[role]
		slog.Info("role performance",
			"role", role,
			"agents", stats.Agents,
			"bets", stats.BetCount,
			"wagered", stats.Wagered,
			"settled", stats.Settled,
			"win_rate", stats.WinRate,
			"pnl", stats.PnL,
			"avg_return", stats.AvgReturn,
		)
	}
}
