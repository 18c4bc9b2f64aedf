package handlers

import (
	"duel-arena-system/middleware"
	"duel-arena-system/services"
	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// 🔓 Public routes: spectators read the bracket and standings
	app.Get("/tournament", tournamentService.GetTournament)
	app.Get("/tournament/leaderboard", tournamentService.GetLeaderboard)
	app.Get("/tournament/stream", tournamentService.StreamTournamentSSE)
	app.Get("/judge/users/verify", tournamentService.VerifyJudgeUser)

	// 🔐 Operator routes
	operator := app.Group("/", middleware.OperatorSecretMiddleware())

	// Lifecycle
	operator.Post("/tournament/start", tournamentService.StartTournament)
	operator.Post("/tournament/advance", tournamentService.AdvanceRound)
	operator.Post("/tournament/refresh", tournamentService.RefreshNow)
	operator.Post("/tournament/reset", tournamentService.ResetTournament)

	// Manual intervention for stuck matches
	operator.Post("/tournament/matches/:match_id/override", tournamentService.OverrideWinner)

	// Persistence
	operator.Post("/tournament/save", tournamentService.SaveSnapshot)
	operator.Post("/tournament/load", tournamentService.LoadSnapshot)
}
