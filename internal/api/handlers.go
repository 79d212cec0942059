package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cryptosim-bot/internal/commands"
	"cryptosim-bot/internal/logging"
)

// CommandRequest is the body of POST /api/commands
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
	Symbol  string `json:"symbol"`
}

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.deps.Bot.State())
}

func (s *Server) handlePosition(c *gin.Context) {
	state := s.deps.Bot.State()
	successResponse(c, gin.H{
		"symbol":   state.Symbol,
		"position": state.CurrentPosition,
	})
}

func (s *Server) handleBalance(c *gin.Context) {
	state := s.deps.Bot.State()
	successResponse(c, gin.H{
		"balance":                state.Balance,
		"cumulative_profit_loss": state.CumulativeProfitLoss,
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.deps.Store == nil {
		successResponse(c, []interface{}{})
		return
	}
	trades, err := s.deps.Store.ListTrades(c.Request.Context(), queryLimit(c))
	if err != nil {
		logger := logging.FromContext(c.Request.Context(), s.logger)
		logger.Error().Err(err).Msg("Failed to list trades")
		errorResponse(c, http.StatusInternalServerError, "failed to load trades")
		return
	}
	successResponse(c, trades)
}

func (s *Server) handleLogs(c *gin.Context) {
	if s.deps.Store == nil {
		successResponse(c, []interface{}{})
		return
	}
	logs, err := s.deps.Store.ListLogs(c.Request.Context(), queryLimit(c))
	if err != nil {
		logger := logging.FromContext(c.Request.Context(), s.logger)
		logger.Error().Err(err).Msg("Failed to list activity logs")
		errorResponse(c, http.StatusInternalServerError, "failed to load logs")
		return
	}
	successResponse(c, logs)
}

// handleEnqueueCommand queues a start/stop command for the poller. The bot
// applies it asynchronously, so the response is 202.
func (s *Server) handleEnqueueCommand(c *gin.Context) {
	if s.deps.Commands == nil {
		errorResponse(c, http.StatusServiceUnavailable, "command queue not configured")
		return
	}

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	cmd, err := s.deps.Commands.EnqueueCommand(ctx, commands.Command{
		Command: commands.Kind(req.Command),
		Symbol:  req.Symbol,
	})
	if err != nil {
		if errors.Is(err, commands.ErrUnknownCommand) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		logger := logging.FromContext(ctx, s.logger)
		logger.Error().Err(err).Msg("Failed to enqueue command")
		errorResponse(c, http.StatusInternalServerError, "failed to enqueue command")
		return
	}

	if s.deps.Wake != nil {
		s.deps.Wake(ctx, cmd.ID)
	}

	logger := logging.FromContext(ctx, s.logger)
	logger.Info().
		Str("command_id", cmd.ID).
		Str("command", string(cmd.Command)).
		Str("symbol", cmd.Symbol).
		Msg("Command enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    cmd,
	})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		return 50
	}
	return limit
}
