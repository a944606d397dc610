package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/credits/internal/identity"
	"github.com/MarkoPoloResearchLab/credits/internal/wire"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	errorInvalidPayload   = "invalid_payload"
	errorIdentityDisabled = "identity_resolution_disabled"
	errorPanic            = "internal_panic"
)

// Run serves router on cfg.ListenAddr until ctx is cancelled.
func Run(ctx context.Context, cfg Config, router http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the HTTP API over the ledger service. resolver may be nil,
// in which case identity resolution answers 501.
func NewRouter(cfg Config, ledgerService *ledger.Service, resolver *identity.Resolver, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.CustomRecovery(func(ctx *gin.Context, recovered any) {
		logger.Error("http handler panic", zap.Any("panic", recovered))
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse(errorPanic, "internal error"))
	}))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := &httpHandler{
		logger:        logger,
		ledgerService: ledgerService,
		resolver:      resolver,
		timeout:       cfg.RequestTimeout,
	}

	api := router.Group("/v1")
	api.POST("/accounts/:accountId/earn", handler.handleEarn)
	api.POST("/accounts/:accountId/spend", handler.handleSpend)
	api.POST("/accounts/:accountId/reservations", handler.handleReserve)
	api.GET("/accounts/:accountId/balance", handler.handleBalance)
	api.GET("/accounts/:accountId/transactions", handler.handleListTransactions)
	api.GET("/accounts/:accountId/reconciliation", handler.handleReconcile)
	api.GET("/reservations/:reservationId", handler.handleGetReservation)
	api.POST("/reservations/:reservationId/commit", handler.handleCommit)
	api.POST("/reservations/:reservationId/release", handler.handleRelease)
	api.POST("/maintenance/sweep", handler.handleSweep)
	api.POST("/identities/resolve", handler.handleResolveIdentity)

	return router
}

type httpHandler struct {
	logger        *zap.Logger
	ledgerService *ledger.Service
	resolver      *identity.Resolver
	timeout       time.Duration
}

func (handler *httpHandler) handleEarn(ctx *gin.Context) {
	var request wire.MovementRequest
	if !handler.bind(ctx, &request) {
		return
	}
	request.AccountID = ctx.Param("accountId")
	earnRequest, err := request.EarnRequest()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	receipt, err := handler.ledgerService.Earn(requestCtx, earnRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewReceiptResponse(receipt))
}

func (handler *httpHandler) handleSpend(ctx *gin.Context) {
	var request wire.MovementRequest
	if !handler.bind(ctx, &request) {
		return
	}
	request.AccountID = ctx.Param("accountId")
	spendRequest, err := request.SpendRequest()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	receipt, err := handler.ledgerService.Spend(requestCtx, spendRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewReceiptResponse(receipt))
}

func (handler *httpHandler) handleReserve(ctx *gin.Context) {
	var request wire.ReserveRequest
	if !handler.bind(ctx, &request) {
		return
	}
	request.AccountID = ctx.Param("accountId")
	reserveRequest, err := request.LedgerRequest()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.ledgerService.Reserve(requestCtx, reserveRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, wire.NewReservationResponse(reservation))
}

func (handler *httpHandler) handleCommit(ctx *gin.Context) {
	var request wire.CommitRequest
	if !handler.bind(ctx, &request) {
		return
	}
	request.ReservationID = ctx.Param("reservationId")
	commitRequest, err := request.LedgerRequest()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	receipt, err := handler.ledgerService.Commit(requestCtx, commitRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewReceiptResponse(receipt))
}

func (handler *httpHandler) handleRelease(ctx *gin.Context) {
	reservationID, err := ledger.NewReservationID(ctx.Param("reservationId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.ledgerService.Release(requestCtx, reservationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewReservationResponse(reservation))
}

func (handler *httpHandler) handleGetReservation(ctx *gin.Context) {
	reservationID, err := ledger.NewReservationID(ctx.Param("reservationId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.ledgerService.GetReservation(requestCtx, reservationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewReservationResponse(reservation))
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	accountID, err := ledger.NewAccountID(ctx.Param("accountId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.ledgerService.Balance(requestCtx, accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewBalanceResponse(balance))
}

func (handler *httpHandler) handleListTransactions(ctx *gin.Context) {
	accountID, err := ledger.NewAccountID(ctx.Param("accountId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	beforeSequence, err := queryInt64(ctx, "before_sequence")
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	limit, err := queryInt64(ctx, "limit")
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	request := wire.ListTransactionsRequest{AccountID: accountID.String(), BeforeSequence: beforeSequence, Limit: int(limit)}
	if err := request.Validate(); err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transactions, err := handler.ledgerService.ListTransactions(requestCtx, accountID, request.BeforeSequence, request.Limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewListTransactionsResponse(transactions))
}

func (handler *httpHandler) handleReconcile(ctx *gin.Context) {
	accountID, err := ledger.NewAccountID(ctx.Param("accountId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reconciliation, err := handler.ledgerService.Reconcile(requestCtx, accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.NewReconciliationResponse(reconciliation))
}

func (handler *httpHandler) handleSweep(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	expired, err := handler.ledgerService.SweepExpired(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.SweepResponse{Expired: expired})
}

func (handler *httpHandler) handleResolveIdentity(ctx *gin.Context) {
	if handler.resolver == nil {
		ctx.JSON(http.StatusNotImplemented, errorResponse(errorIdentityDisabled, "identity resolution is not configured"))
		return
	}
	var request wire.ResolveIdentityRequest
	if !handler.bind(ctx, &request) {
		return
	}
	if err := request.Validate(); err != nil {
		handler.respondError(ctx, err)
		return
	}
	platform, err := ledger.NewSourcePlatform(request.Platform)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	accountID, err := handler.resolver.Resolve(requestCtx, platform, request.PlatformUserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.IdentityResponse{AccountID: accountID.String()})
}

// bind decodes an optional JSON body. An empty body leaves target untouched.
func (handler *httpHandler) bind(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return false
	}
	return true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	if handler.timeout <= 0 {
		return context.WithCancel(ctx.Request.Context())
	}
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	class, code := wire.Classify(err)
	statusCode := httpStatus(class)
	if statusCode >= http.StatusInternalServerError {
		handler.logger.Error("ledger request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(statusCode, errorResponse(code, http.StatusText(statusCode)))
		return
	}
	ctx.JSON(statusCode, errorResponse(code, err.Error()))
}

func httpStatus(class wire.ErrorClass) int {
	switch class {
	case wire.ClassInvalid:
		return http.StatusBadRequest
	case wire.ClassInsufficient:
		return http.StatusPaymentRequired
	case wire.ClassNotFound:
		return http.StatusNotFound
	case wire.ClassAlreadyProcessed, wire.ClassConflict:
		return http.StatusConflict
	case wire.ClassExpired:
		return http.StatusGone
	case wire.ClassUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt64(ctx *gin.Context, name string) (int64, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", wire.ErrInvalidLimit, name)
	}
	return value, nil
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
