// Package api exposes the rule engine over HTTP. Clients submit an operation
// together with the trace of its simulation and the state it ran against, and
// receive the verdict.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	model "github.com/blndgs/oprules"
	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/validation"
)

const defaultMaxBodyBytes = 16 << 20

// Simulation is a recorded simulation of one operation. Revert, when set, is
// the reason the validation call reverted, and Result is ignored.
type Simulation struct {
	UserOp *model.UserOperation         `json:"userOp" binding:"required"`
	Result *validation.SimulationResult `json:"simulation"`
	Revert string                       `json:"revert,omitempty" binding:"omitempty,revert"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	// EntryPoint is the EntryPoint the client expects the operation to be
	// validated against. Empty means the configured one.
	EntryPoint string `json:"entryPoint" binding:"omitempty,eth_addr"`
	Simulation
	State validation.StaticView `json:"state"`
}

// ValidateBatchRequest is the body of POST /v1/validate/batch. All operations
// are validated against the same state.
type ValidateBatchRequest struct {
	EntryPoint string                `json:"entryPoint" binding:"omitempty,eth_addr"`
	Ops        []Simulation          `json:"ops" binding:"required,min=1,dive"`
	State      validation.StaticView `json:"state"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Error RPCError `json:"error"`
}

type verdictResponse struct {
	Verdict validation.Verdict `json:"verdict"`
}

type batchResponse struct {
	Verdicts []validation.Verdict `json:"verdicts"`
}

// Handler serves validation requests.
type Handler struct {
	validator    *validation.Validator
	replay       *replaySimulator
	entryPoint   common.Address
	maxBodyBytes int64
	logger       zerolog.Logger
}

// NewHandler builds a handler validating with rules. Options are passed to the
// validator.
func NewHandler(rules validation.Rules, stakePolicy entity.StakePolicy, maxBodyBytes int64, logger zerolog.Logger, opts ...validation.Option) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	replay := newReplaySimulator()
	return &Handler{
		validator:    validation.NewValidator(rules, stakePolicy, replay, logger, opts...),
		replay:       replay,
		entryPoint:   rules.EntryPoint,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Validate handles POST /v1/validate. An admitted operation is answered with
// 200, a rejected one with 422 and the verdict as error data.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if !h.bind(c, &req) {
		return
	}
	if !h.checkEntryPoint(c, req.EntryPoint) {
		return
	}

	release := h.replay.record(req.UserOp, req.Result, req.Revert)
	defer release()

	verdict, err := h.validator.Validate(c.Request.Context(), req.UserOp, &req.State)
	if err != nil {
		h.abortInternal(c, err)
		return
	}
	if !verdict.Admit {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: RPCError{
			Code:    verdict.Reason.RPCCode(),
			Message: verdict.Message(),
			Data:    verdict,
		}})
		return
	}
	c.JSON(http.StatusOK, verdictResponse{Verdict: verdict})
}

// ValidateBatch handles POST /v1/validate/batch. Verdicts are returned in
// request order with 200, whatever their outcome.
func (h *Handler) ValidateBatch(c *gin.Context) {
	var req ValidateBatchRequest
	if !h.bind(c, &req) {
		return
	}
	if !h.checkEntryPoint(c, req.EntryPoint) {
		return
	}

	ops := make([]*model.UserOperation, len(req.Ops))
	for i, sim := range req.Ops {
		ops[i] = sim.UserOp
		release := h.replay.record(sim.UserOp, sim.Result, sim.Revert)
		defer release()
	}

	verdicts, err := h.validator.ValidateBatch(c.Request.Context(), ops, &req.State)
	if err != nil {
		h.abortInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, batchResponse{Verdicts: verdicts})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entryPoint": h.entryPoint.Hex()})
}

// bind decodes the body with the operation codecs and validates the binding
// tags of v.
func (h *Handler) bind(c *gin.Context, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortRPC(c, http.StatusRequestEntityTooLarge, validation.RPCCodeInvalidParams, "request body too large")
			return false
		}
		abortRPC(c, http.StatusBadRequest, validation.RPCCodeInvalidParams, err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		abortRPC(c, http.StatusBadRequest, validation.RPCCodeInvalidParams, "invalid request: "+err.Error())
		return false
	}
	if err := binding.Validator.ValidateStruct(v); err != nil {
		abortRPC(c, http.StatusBadRequest, validation.RPCCodeInvalidParams, "invalid request: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) checkEntryPoint(c *gin.Context, entryPoint string) bool {
	if entryPoint == "" || common.HexToAddress(entryPoint) == h.entryPoint {
		return true
	}
	abortRPC(c, http.StatusBadRequest, validation.RPCCodeInvalidParams,
		"unsupported entry point "+strings.ToLower(entryPoint))
	return false
}

func (h *Handler) abortInternal(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		abortRPC(c, http.StatusServiceUnavailable, validation.RPCCodeSimulationFailed, err.Error())
		return
	}
	h.logger.Error().Err(err).Msg("validation failed")
	abortRPC(c, http.StatusInternalServerError, rpcCodeInternal, "internal error")
}

const rpcCodeInternal = -32603

func abortRPC(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: RPCError{Code: code, Message: message}})
}
