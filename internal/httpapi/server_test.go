package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarkoPoloResearchLab/credits/internal/identity"
	"github.com/MarkoPoloResearchLab/credits/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/credits/internal/wire"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixedUnixUTC = 1_700_000_000

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(test *testing.T, withResolver bool) *gin.Engine {
	test.Helper()
	store := memstore.New()
	now := func() int64 { return fixedUnixUTC }
	ledgerService, err := ledger.NewService(store, now)
	require.NoError(test, err)
	var resolver *identity.Resolver
	if withResolver {
		resolver, err = identity.NewResolver(identity.NewMemoryLinkStore(), store, now)
		require.NoError(test, err)
	}
	cfg := Config{AllowedOrigins: []string{"https://app.example.com"}}
	require.NoError(test, cfg.Validate())
	return NewRouter(cfg, ledgerService, resolver, nil)
}

func perform(test *testing.T, router http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	test.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(test, err)
	}
	request := httptest.NewRequest(method, path, bytes.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](test *testing.T, recorder *httptest.ResponseRecorder) T {
	test.Helper()
	var value T
	require.NoError(test, json.Unmarshal(recorder.Body.Bytes(), &value), recorder.Body.String())
	return value
}

func TestReservationLifecycleOverHTTP(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test, false)

	earned := perform(test, router, http.MethodPost, "/v1/accounts/acct-1/earn", map[string]any{
		"amount": 100, "kind": "promotion", "source_platform": "marketplace", "idempotency_key": "promo-1",
	})
	require.Equal(test, http.StatusOK, earned.Code, earned.Body.String())
	assert.EqualValues(test, 100, decode[wire.ReceiptResponse](test, earned).Balance)

	reserved := perform(test, router, http.MethodPost, "/v1/accounts/acct-1/reservations", map[string]any{
		"amount": 60, "purpose": "render", "source_platform": "studio",
	})
	require.Equal(test, http.StatusCreated, reserved.Code, reserved.Body.String())
	reservation := decode[wire.ReservationResponse](test, reserved)
	assert.Equal(test, "pending", reservation.Status)

	overdraw := perform(test, router, http.MethodPost, "/v1/accounts/acct-1/spend", map[string]any{
		"amount": 50, "kind": "ai_tool_spend", "source_platform": "studio",
	})
	require.Equal(test, http.StatusPaymentRequired, overdraw.Code)
	assert.Equal(test, wire.CodeInsufficientCredits, decode[errorEnvelope](test, overdraw).Error.Code)

	spent := perform(test, router, http.MethodPost, "/v1/accounts/acct-1/spend", map[string]any{
		"amount": 40, "kind": "ai_tool_spend", "source_platform": "studio",
	})
	require.Equal(test, http.StatusOK, spent.Code, spent.Body.String())
	assert.EqualValues(test, 60, decode[wire.ReceiptResponse](test, spent).Balance)

	released := perform(test, router, http.MethodPost, "/v1/reservations/"+reservation.ReservationID+"/release", nil)
	require.Equal(test, http.StatusOK, released.Code, released.Body.String())
	assert.Equal(test, "released", decode[wire.ReservationResponse](test, released).Status)

	releasedAgain := perform(test, router, http.MethodPost, "/v1/reservations/"+reservation.ReservationID+"/release", nil)
	require.Equal(test, http.StatusOK, releasedAgain.Code)

	commitAfterRelease := perform(test, router, http.MethodPost, "/v1/reservations/"+reservation.ReservationID+"/commit", map[string]any{"kind": "render_spend"})
	require.Equal(test, http.StatusConflict, commitAfterRelease.Code)
	assert.Equal(test, wire.CodeReservationAlreadyProcessed, decode[errorEnvelope](test, commitAfterRelease).Error.Code)

	balance := perform(test, router, http.MethodGet, "/v1/accounts/acct-1/balance", nil)
	require.Equal(test, http.StatusOK, balance.Code)
	balancePayload := decode[wire.BalanceResponse](test, balance)
	assert.EqualValues(test, 60, balancePayload.Balance)
	assert.EqualValues(test, 60, balancePayload.Available)
	assert.EqualValues(test, 100, balancePayload.LifetimeEarned)

	page := perform(test, router, http.MethodGet, "/v1/accounts/acct-1/transactions?limit=1", nil)
	require.Equal(test, http.StatusOK, page.Code)
	transactions := decode[wire.ListTransactionsResponse](test, page).Transactions
	require.Len(test, transactions, 1)
	assert.EqualValues(test, 2, transactions[0].Sequence)

	olderPage := perform(test, router, http.MethodGet, "/v1/accounts/acct-1/transactions?before_sequence=2", nil)
	require.Equal(test, http.StatusOK, olderPage.Code)
	older := decode[wire.ListTransactionsResponse](test, olderPage).Transactions
	require.Len(test, older, 1)
	assert.Equal(test, "promo-1", older[0].IdempotencyKey)

	reconciliation := perform(test, router, http.MethodGet, "/v1/accounts/acct-1/reconciliation", nil)
	require.Equal(test, http.StatusOK, reconciliation.Code)
	assert.True(test, decode[wire.ReconciliationResponse](test, reconciliation).Consistent)
}

func TestErrorStatuses(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test, false)

	testCases := []struct {
		name           string
		method         string
		path           string
		body           any
		rawBody        string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "malformed json",
			method:         http.MethodPost,
			path:           "/v1/accounts/acct-1/earn",
			rawBody:        "{",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   errorInvalidPayload,
		},
		{
			name:           "zero amount",
			method:         http.MethodPost,
			path:           "/v1/accounts/acct-1/earn",
			body:           map[string]any{"amount": 0, "kind": "loyalty", "source_platform": "arcade"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   wire.CodeInvalidAmount,
		},
		{
			name:           "unknown kind",
			method:         http.MethodPost,
			path:           "/v1/accounts/acct-1/earn",
			body:           map[string]any{"amount": 5, "kind": "gift", "source_platform": "arcade"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   wire.CodeInvalidTransactionKind,
		},
		{
			name:           "bad limit",
			method:         http.MethodGet,
			path:           "/v1/accounts/acct-1/transactions?limit=abc",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   wire.CodeInvalidLimit,
		},
		{
			name:           "missing reservation",
			method:         http.MethodGet,
			path:           "/v1/reservations/missing",
			expectedStatus: http.StatusNotFound,
			expectedCode:   wire.CodeReservationNotFound,
		},
		{
			name:           "identity disabled",
			method:         http.MethodPost,
			path:           "/v1/identities/resolve",
			body:           map[string]any{"platform": "arcade", "platform_user_id": "p-1"},
			expectedStatus: http.StatusNotImplemented,
			expectedCode:   errorIdentityDisabled,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			var recorder *httptest.ResponseRecorder
			if testCase.rawBody != "" {
				request := httptest.NewRequest(testCase.method, testCase.path, bytes.NewBufferString(testCase.rawBody))
				request.Header.Set("Content-Type", "application/json")
				recorder = httptest.NewRecorder()
				router.ServeHTTP(recorder, request)
			} else {
				recorder = perform(test, router, testCase.method, testCase.path, testCase.body)
			}
			require.Equal(test, testCase.expectedStatus, recorder.Code, recorder.Body.String())
			assert.Equal(test, testCase.expectedCode, decode[errorEnvelope](test, recorder).Error.Code)
		})
	}
}

func TestSweepAndIdentityRoutes(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test, true)

	resolved := perform(test, router, http.MethodPost, "/v1/identities/resolve", map[string]any{"platform": "studio", "platform_user_id": "u-9"})
	require.Equal(test, http.StatusOK, resolved.Code, resolved.Body.String())
	accountID := decode[wire.IdentityResponse](test, resolved).AccountID
	require.NotEmpty(test, accountID)

	sweep := perform(test, router, http.MethodPost, "/v1/maintenance/sweep", nil)
	require.Equal(test, http.StatusOK, sweep.Code)
	assert.Equal(test, 0, decode[wire.SweepResponse](test, sweep).Expired)

	balance := perform(test, router, http.MethodGet, "/v1/accounts/"+accountID+"/balance", nil)
	require.Equal(test, http.StatusOK, balance.Code)
	assert.EqualValues(test, 0, decode[wire.BalanceResponse](test, balance).Balance)
}

func TestOperationalRoutes(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test, false)

	health := perform(test, router, http.MethodGet, "/healthz", nil)
	require.Equal(test, http.StatusOK, health.Code)
	assert.JSONEq(test, `{"status":"ok"}`, health.Body.String())

	metrics := perform(test, router, http.MethodGet, "/metrics", nil)
	require.Equal(test, http.StatusOK, metrics.Code)
	assert.Contains(test, metrics.Body.String(), "go_goroutines")

	preflight := httptest.NewRequest(http.MethodOptions, "/v1/accounts/acct-1/earn", nil)
	preflight.Header.Set("Origin", "https://app.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, preflight)
	assert.Equal(test, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestConfigValidate(test *testing.T) {
	test.Parallel()
	cfg := Config{}
	require.NoError(test, cfg.Validate())
	assert.Equal(test, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(test, []string{defaultAllowedOrigin}, cfg.AllowedOrigins)
	assert.Equal(test, defaultRequestTimeout, cfg.RequestTimeout)

	negative := Config{RequestTimeout: -1}
	require.Error(test, negative.Validate())

	assert.Equal(test, []string{"https://a.example", "https://b.example"}, ParseAllowedOrigins(" https://a.example, ,https://b.example "))
	assert.Empty(test, ParseAllowedOrigins("  "))
}
