/*
handlers.go - HTTP API handlers for the cash ledger

PURPOSE:
  Exposes the ledger engine, reporting queries and reference-data
  administration via REST. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/login             Open a session, returns bearer token
    POST   /api/auth/logout            Revoke the session

  Transactions:
    POST   /api/transactions           Record a movement (engine Result)
    GET    /api/transactions           Filtered, paginated history
    GET    /api/transactions/{id}      Single row (deleted rows included)
    DELETE /api/transactions/{id}      Soft delete (idempotent success)
    PATCH  /api/transactions/{id}/notes Narrow notes correction

  Reference data:
    GET/POST   /api/accounts           List / create
    PUT/DELETE /api/accounts/{id}      Update / soft delete
    (same shape for /api/platforms, /api/games and /api/players)
    GET/POST   /api/operators

  Credits:
    GET    /api/credits                Per-player balances
    POST   /api/credits                Add or settle credit
    DELETE /api/credits/{id}           Soft delete an entry
    GET    /api/players/{id}/credits   One player's entries

  Reports:
    GET /api/reports/today             Today's movement totals
    GET /api/reports/monthly?month=    Calendar-month report
    GET /api/reports/accounts          Per-account limit stats
    GET /api/reports/near-limit        Accounts at or past 80%

ERROR HANDLING:
  Engine outcomes serialize as ResultDTO; the HTTP status derives from
  the rejection kind:
  - 400: INVALID_AMOUNT, INVALID_SOURCE
  - 404: SOURCE_NOT_FOUND
  - 409: SOURCE_INACTIVE, ATM_NOT_ENABLED
  - 422: MONTHLY_IN/OUT_LIMIT_EXCEEDED
  - 401: UNAUTHORIZED
  - 503: DATABASE_ERROR
  Non-engine failures use the generic ErrorResponse shape.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup, session middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/cash-ledger/auth"
	"github.com/warp/cash-ledger/ledger"
	"github.com/warp/cash-ledger/reporting"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the full persistence surface the API needs. Both the sqlite
// and postgres stores satisfy it.
type Backend interface {
	ledger.TransactionStore
	ledger.ReferenceStore
	ledger.AdminStore
	ledger.PlayerStore
	reporting.Store
	auth.TokenStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	Reports  *reporting.Service
	Sessions *auth.Manager
	Store    Backend

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewHandler wires the engine, reporting service and session manager over
// one backend. loc is the canonical timezone for month bucketing; nil means
// server-local.
func NewHandler(store Backend, loc *time.Location) *Handler {
	engine := ledger.NewEngine(store, store)
	engine.Location = loc
	return &Handler{
		Engine: engine,
		Reports: &reporting.Service{
			Store:      store,
			Aggregates: &ledger.Aggregator{Transactions: store, Refs: store, Location: loc},
			Accounts:   adminLister{store},
			Location:   loc,
		},
		Sessions: &auth.Manager{Store: store},
		Store:    store,
		Now:      time.Now,
	}
}

// adminLister narrows the backend to the slice the reporting service needs.
type adminLister struct {
	store Backend
}

func (l adminLister) ListAccounts(ctx context.Context, includeDeleted bool) ([]ledger.Account, error) {
	return l.store.ListAccounts(ctx, includeDeleted)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login opens a session for an operator.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OperatorID == "" {
		writeError(w, http.StatusBadRequest, "operator_id is required", nil)
		return
	}

	operator, err := h.Store.GetOperator(r.Context(), ledger.OperatorID(req.OperatorID))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to resolve operator", err)
		return
	}
	if operator == nil {
		writeError(w, http.StatusUnauthorized, "Unknown operator", nil)
		return
	}

	token, err := h.Sessions.Issue(r.Context(), operator.ID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to open session", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:      token,
		OperatorID: string(operator.ID),
		Name:       operator.Name,
		Role:       string(operator.Role),
	})
}

// Logout revokes the session. Revoking an unknown token still succeeds.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Revoke(r.Context(), bearerToken(r)); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to revoke session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// SubmitTransaction records a movement. Every engine outcome serializes as
// a ResultDTO; the status code mirrors the rejection kind.
// POST /api/transactions
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		// Malformed amounts get the same taxonomy code a non-positive one
		// would, so clients handle a single rejection shape.
		writeJSON(w, http.StatusBadRequest, toResultDTO(
			ledger.Rejected(ledger.RejectInvalidAmount, "amount must be a positive decimal string")))
		return
	}

	result := h.Engine.RecordTransaction(r.Context(), ledger.TransactionRequest{
		Direction:       ledger.Direction(req.Direction),
		Amount:          amount,
		SourceType:      ledger.SourceType(req.SourceType),
		AccountID:       ledger.AccountID(req.AccountID),
		PlatformID:      ledger.PlatformID(req.PlatformID),
		GameID:          ledger.GameID(req.GameID),
		WithdrawSubtype: ledger.WithdrawSubtype(req.WithdrawSubtype),
		Notes:           req.Notes,
		OperatorID:      operatorFromContext(r.Context()),
	})

	writeJSON(w, statusForResult(result), toResultDTO(result))
}

func statusForResult(res ledger.Result) int {
	if res.Success {
		return http.StatusCreated
	}
	switch res.Error {
	case ledger.RejectInvalidAmount, ledger.RejectInvalidSource:
		return http.StatusBadRequest
	case ledger.RejectSourceNotFound:
		return http.StatusNotFound
	case ledger.RejectSourceInactive, ledger.RejectATMNotEnabled:
		return http.StatusConflict
	case ledger.RejectMonthlyInLimit, ledger.RejectMonthlyOutLimit:
		return http.StatusUnprocessableEntity
	case ledger.RejectUnauthorized:
		return http.StatusUnauthorized
	case ledger.RejectDatabaseError:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// DeleteTransaction soft-deletes a row. Deleting an already-deleted row
// succeeds; only an unknown ID is an error.
// DELETE /api/transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	res := h.Engine.SoftDeleteTransaction(r.Context(), id, operatorFromContext(r.Context()))
	writeJSON(w, statusForDelete(res), DeleteResponse{
		Success: res.Success,
		Message: res.Message,
		Error:   string(res.Error),
	})
}

func statusForDelete(res ledger.DeleteResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Error {
	case ledger.RejectUnauthorized:
		return http.StatusUnauthorized
	case ledger.RejectDatabaseError:
		return http.StatusServiceUnavailable
	}
	return http.StatusNotFound
}

// UpdateTransactionNotes updates notes only; the ledger-critical fields
// are immutable.
// PATCH /api/transactions/{id}/notes
func (h *Handler) UpdateTransactionNotes(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	var req UpdateNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Engine.UpdateTransactionNotes(r.Context(), id, req.Notes)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to update notes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTransaction returns one row, soft-deleted or not.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	tx, err := h.Store.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to load transaction", err)
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// ListTransactions returns filtered, paginated history, newest first.
// GET /api/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f := historyFilter(r)
	page, err := h.Reports.History(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to query history", err)
		return
	}

	dtos := make([]TransactionDTO, len(page.Transactions))
	for i, tx := range page.Transactions {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Transactions: dtos,
		Total:        page.Total,
		Limit:        f.Limit,
		Offset:       f.Offset,
	})
}

func historyFilter(r *http.Request) reporting.Filter {
	q := r.URL.Query()
	f := reporting.Filter{
		Direction:  ledger.Direction(q.Get("direction")),
		SourceType: ledger.SourceType(q.Get("source_type")),
		AccountID:  ledger.AccountID(q.Get("account_id")),
		PlatformID: ledger.PlatformID(q.Get("platform_id")),
		GameID:     ledger.GameID(q.Get("game_id")),
		OperatorID: ledger.OperatorID(q.Get("operator_id")),
		Limit:      intQuery(q.Get("limit")),
		Offset:     intQuery(q.Get("offset")),
	}
	if t, err := time.Parse(time.RFC3339, q.Get("start")); err == nil {
		f.Start = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("end")); err == nil {
		f.End = &t
	}
	return f
}

// intQuery parses a non-negative integer; anything else means "unset".
func intQuery(s string) int {
	if s == "" {
		return 0
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns accounts; ?include_deleted=true keeps tombstones.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	accounts, err := h.Store.ListAccounts(r.Context(), includeDeleted)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates an account; the ID is server-assigned when absent.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpsertAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	h.saveAccount(w, r, req)
}

// UpdateAccount updates an existing account in place.
// PUT /api/accounts/{id}
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpsertAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	h.saveAccount(w, r, req)
}

func (h *Handler) saveAccount(w http.ResponseWriter, r *http.Request, req UpsertAccountRequest) {
	if req.Nickname == "" {
		writeError(w, http.StatusBadRequest, "nickname is required", nil)
		return
	}
	kind := ledger.AccountKind(req.Kind)
	if kind != ledger.KindHolding && kind != ledger.KindPaying {
		writeError(w, http.StatusBadRequest, "kind must be holding or paying", nil)
		return
	}
	inLimit, ok := parseAmount(req.MonthlyInLimit)
	if !ok || inLimit.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "monthly_in_limit must be a non-negative decimal string", nil)
		return
	}
	outLimit, ok := parseAmount(req.MonthlyOutLimit)
	if !ok || outLimit.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "monthly_out_limit must be a non-negative decimal string", nil)
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be active or inactive", nil)
		return
	}

	account := ledger.Account{
		ID:                   ledger.AccountID(req.ID),
		Nickname:             req.Nickname,
		Tag:                  req.Tag,
		Kind:                 kind,
		Status:               status,
		MonthlyInLimit:       inLimit,
		MonthlyOutLimit:      outLimit,
		ATMWithdrawalEnabled: req.ATMWithdrawalEnabled,
	}
	if err := h.Store.SaveAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to save account", err)
		return
	}

	saved, err := h.Store.GetAccount(r.Context(), account.ID)
	if err != nil || saved == nil {
		writeJSON(w, http.StatusOK, toAccountDTO(account))
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*saved))
}

// DeleteAccount tombstones an account. Deleting twice is a no-op.
// DELETE /api/accounts/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	err := h.Store.SoftDeleteAccount(r.Context(), id, operatorFromContext(r.Context()), h.now())
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PLATFORM HANDLERS
// =============================================================================

// GET /api/platforms
func (h *Handler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	platforms, err := h.Store.ListPlatforms(r.Context(), includeDeleted)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list platforms", err)
		return
	}

	dtos := make([]PlatformDTO, len(platforms))
	for i, p := range platforms {
		dtos[i] = toPlatformDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// POST /api/platforms
func (h *Handler) CreatePlatform(w http.ResponseWriter, r *http.Request) {
	var req UpsertPlatformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	h.savePlatform(w, r, req)
}

// PUT /api/platforms/{id}
func (h *Handler) UpdatePlatform(w http.ResponseWriter, r *http.Request) {
	var req UpsertPlatformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	h.savePlatform(w, r, req)
}

func (h *Handler) savePlatform(w http.ResponseWriter, r *http.Request, req UpsertPlatformRequest) {
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be active or inactive", nil)
		return
	}

	platform := ledger.Platform{
		ID:          ledger.PlatformID(req.ID),
		Name:        req.Name,
		Tag:         req.Tag,
		DepositURL:  req.DepositURL,
		WithdrawURL: req.WithdrawURL,
		Balance:     decimalOrZero(req.Balance),
		Status:      status,
	}
	if err := h.Store.SavePlatform(r.Context(), platform); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to save platform", err)
		return
	}

	saved, err := h.Store.GetPlatform(r.Context(), platform.ID)
	if err != nil || saved == nil {
		writeJSON(w, http.StatusOK, toPlatformDTO(platform))
		return
	}
	writeJSON(w, http.StatusOK, toPlatformDTO(*saved))
}

// DELETE /api/platforms/{id}
func (h *Handler) DeletePlatform(w http.ResponseWriter, r *http.Request) {
	id := ledger.PlatformID(chi.URLParam(r, "id"))

	err := h.Store.SoftDeletePlatform(r.Context(), id, operatorFromContext(r.Context()), h.now())
	if errors.Is(err, ledger.ErrPlatformNotFound) {
		writeError(w, http.StatusNotFound, "Platform not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to delete platform", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// GAME HANDLERS
// =============================================================================

// GET /api/games
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	games, err := h.Store.ListGames(r.Context(), includeDeleted)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list games", err)
		return
	}

	dtos := make([]GameDTO, len(games))
	for i, g := range games {
		dtos[i] = toGameDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// POST /api/games
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req UpsertGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	h.saveGame(w, r, req)
}

// PUT /api/games/{id}
func (h *Handler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	var req UpsertGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	h.saveGame(w, r, req)
}

func (h *Handler) saveGame(w http.ResponseWriter, r *http.Request, req UpsertGameRequest) {
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be active or inactive", nil)
		return
	}

	game := ledger.Game{
		ID:     ledger.GameID(req.ID),
		Name:   req.Name,
		Tag:    req.Tag,
		Status: status,
	}
	if err := h.Store.SaveGame(r.Context(), game); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to save game", err)
		return
	}

	saved, err := h.Store.GetGame(r.Context(), game.ID)
	if err != nil || saved == nil {
		writeJSON(w, http.StatusOK, toGameDTO(game))
		return
	}
	writeJSON(w, http.StatusOK, toGameDTO(*saved))
}

// DELETE /api/games/{id}
func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	id := ledger.GameID(chi.URLParam(r, "id"))

	err := h.Store.SoftDeleteGame(r.Context(), id, operatorFromContext(r.Context()), h.now())
	if errors.Is(err, ledger.ErrGameNotFound) {
		writeError(w, http.StatusNotFound, "Game not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to delete game", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PLAYER HANDLERS
// =============================================================================

// GET /api/players
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	players, err := h.Store.ListPlayers(r.Context(), includeDeleted)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list players", err)
		return
	}

	dtos := make([]PlayerDTO, len(players))
	for i, p := range players {
		dtos[i] = toPlayerDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlayer registers a player; the session operator becomes the
// creator of record.
// POST /api/players
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req UpsertPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	h.savePlayer(w, r, req, operatorFromContext(r.Context()))
}

// PUT /api/players/{id}
func (h *Handler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var req UpsertPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	h.savePlayer(w, r, req, operatorFromContext(r.Context()))
}

func (h *Handler) savePlayer(w http.ResponseWriter, r *http.Request, req UpsertPlayerRequest, createdBy ledger.OperatorID) {
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	player := ledger.Player{
		ID:        ledger.PlayerID(req.ID),
		Name:      req.Name,
		FBLink:    req.FBLink,
		FriendOn:  req.FriendOn,
		Notes:     req.Notes,
		CreatedBy: createdBy,
	}
	if err := h.Store.SavePlayer(r.Context(), player); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to save player", err)
		return
	}

	saved, err := h.Store.GetPlayer(r.Context(), player.ID)
	if err != nil || saved == nil {
		writeJSON(w, http.StatusOK, toPlayerDTO(player))
		return
	}
	writeJSON(w, http.StatusOK, toPlayerDTO(*saved))
}

// DELETE /api/players/{id}
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	id := ledger.PlayerID(chi.URLParam(r, "id"))

	err := h.Store.SoftDeletePlayer(r.Context(), id, operatorFromContext(r.Context()), h.now())
	if errors.Is(err, ledger.ErrPlayerNotFound) {
		writeError(w, http.StatusNotFound, "Player not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to delete player", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CREDIT HANDLERS
// =============================================================================

// ListPlayerCredits returns every live player's balance.
// GET /api/credits
func (h *Handler) ListPlayerCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := h.Store.ListPlayerCredits(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list credits", err)
		return
	}

	dtos := make([]PlayerCreditDTO, len(credits))
	for i, c := range credits {
		dtos[i] = toPlayerCreditDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListCreditEntries returns one player's live credit history.
// GET /api/players/{id}/credits
func (h *Handler) ListCreditEntries(w http.ResponseWriter, r *http.Request) {
	id := ledger.PlayerID(chi.URLParam(r, "id"))

	player, err := h.Store.GetPlayer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to load player", err)
		return
	}
	if player == nil {
		writeError(w, http.StatusNotFound, "Player not found", nil)
		return
	}

	entries, err := h.Store.ListCreditEntries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list credit entries", err)
		return
	}

	dtos := make([]CreditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toCreditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCreditEntry appends one line to a player's credit book: kind "add"
// raises the balance, "pay" settles it. The amount's sign is normalized
// from the kind.
// POST /api/credits
func (h *Handler) CreateCreditEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	kind := ledger.CreditKind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be add or pay", nil)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount.Sign() == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a non-zero decimal string", nil)
		return
	}

	player, err := h.Store.GetPlayer(r.Context(), ledger.PlayerID(req.PlayerID))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to load player", err)
		return
	}
	if player == nil || player.Deleted() {
		writeError(w, http.StatusNotFound, "Player not found", nil)
		return
	}

	entry := ledger.CreditEntry{
		ID:         ledger.CreditEntryID(uuid.NewString()),
		PlayerID:   player.ID,
		Kind:       kind,
		Amount:     ledger.SignedCreditAmount(kind, amount),
		Notes:      req.Notes,
		OperatorID: operatorFromContext(r.Context()),
		CreatedAt:  h.now(),
	}
	if err := h.Store.InsertCreditEntry(r.Context(), entry); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to save credit entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreditEntryDTO(entry))
}

// DELETE /api/credits/{id}
func (h *Handler) DeleteCreditEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditEntryID(chi.URLParam(r, "id"))

	err := h.Store.MarkCreditEntryDeleted(r.Context(), id, operatorFromContext(r.Context()), h.now())
	if errors.Is(err, ledger.ErrCreditEntryNotFound) {
		writeError(w, http.StatusNotFound, "Credit entry not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to delete credit entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// OPERATOR HANDLERS
// =============================================================================

// GET /api/operators
func (h *Handler) ListOperators(w http.ResponseWriter, r *http.Request) {
	operators, err := h.Store.ListOperators(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list operators", err)
		return
	}

	dtos := make([]OperatorDTO, len(operators))
	for i, o := range operators {
		dtos[i] = toOperatorDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// POST /api/operators
func (h *Handler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req UpsertOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	role := ledger.Role(req.Role)
	if role == "" {
		role = ledger.RoleOperator
	}
	if role != ledger.RoleAdmin && role != ledger.RoleOperator {
		writeError(w, http.StatusBadRequest, "role must be admin or operator", nil)
		return
	}

	operator := ledger.Operator{
		ID:   ledger.OperatorID(req.ID),
		Name: req.Name,
		Role: role,
	}
	if err := h.Store.SaveOperator(r.Context(), operator); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to save operator", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOperatorDTO(operator))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// TodayReport returns movement totals for the current calendar day.
// GET /api/reports/today
func (h *Handler) TodayReport(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Reports.TodaySummary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to build today summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toRangeTotalsDTO(totals))
}

// MonthlyReport returns the report for ?month=YYYY-MM, defaulting to the
// current month.
// GET /api/reports/monthly
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	ref := h.now()
	if month := r.URL.Query().Get("month"); month != "" {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM", err)
			return
		}
		// Mid-month anchor sidesteps timezone effects at the boundary.
		ref = t.AddDate(0, 0, 14)
	}

	report, err := h.Reports.Monthly(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to build monthly report", err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthlyReportDTO(report))
}

// AccountReport returns every active account's limit picture this month.
// GET /api/reports/accounts
func (h *Handler) AccountReport(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Reports.AccountSummaries(r.Context(), h.now())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to build account summaries", err)
		return
	}

	dtos := make([]AccountStatsDTO, len(stats))
	for i, s := range stats {
		dtos[i] = toAccountStatsDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// NearLimitReport returns accounts at or past 80% in either direction.
// GET /api/reports/near-limit
func (h *Handler) NearLimitReport(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Reports.NearLimitAccounts(r.Context(), h.now())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to build near-limit report", err)
		return
	}

	dtos := make([]AccountStatsDTO, len(stats))
	for i, s := range stats {
		dtos[i] = toAccountStatsDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func parseStatus(s string) (ledger.Status, bool) {
	switch ledger.Status(s) {
	case "":
		return ledger.StatusActive, true
	case ledger.StatusActive:
		return ledger.StatusActive, true
	case ledger.StatusInactive:
		return ledger.StatusInactive, true
	}
	return "", false
}

func decimalOrZero(s string) decimal.Decimal {
	if d, ok := parseAmount(s); ok {
		return d
	}
	return decimal.Zero
}
