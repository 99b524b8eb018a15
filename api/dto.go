/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts cross the wire as decimal strings, never floats. Clients render
  them verbatim or parse with their own decimal library.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/result.go: The Result value these DTOs serialize
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cash-ledger/ledger"
	"github.com/warp/cash-ledger/reporting"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// SubmitTransactionRequest is the request to record a movement. The operator
// comes from the session, never from the body.
type SubmitTransactionRequest struct {
	Direction       string `json:"direction"`
	Amount          string `json:"amount"`
	SourceType      string `json:"source_type"`
	AccountID       string `json:"account_id,omitempty"`
	PlatformID      string `json:"platform_id,omitempty"`
	GameID          string `json:"game_id,omitempty"`
	WithdrawSubtype string `json:"withdraw_subtype,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// ResultDTO serializes a ledger.Result. The headroom fields appear only on
// limit rejections.
type ResultDTO struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message"`
	CurrentTotal  string `json:"current_total,omitempty"`
	Limit         string `json:"limit,omitempty"`
	Remaining     string `json:"remaining,omitempty"`
	Requested     string `json:"requested,omitempty"`
}

func toResultDTO(res ledger.Result) ResultDTO {
	dto := ResultDTO{
		Success:       res.Success,
		TransactionID: string(res.TransactionID),
		Error:         string(res.Error),
		Message:       res.Message,
	}
	if res.CurrentTotal != nil {
		dto.CurrentTotal = res.CurrentTotal.String()
	}
	if res.Limit != nil {
		dto.Limit = res.Limit.String()
	}
	if res.Remaining != nil {
		dto.Remaining = res.Remaining.String()
	}
	if res.Requested != nil {
		dto.Requested = res.Requested.String()
	}
	return dto
}

// DeleteResponse is the outcome of a soft delete. Error carries the
// rejection kind on failure so clients can tell a missing row from an
// outage.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// UpdateNotesRequest is the narrow correction path for a recorded movement.
type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// TransactionDTO represents a ledger row in API responses. Deleted rows
// carry their tombstone so history screens can strike them through.
type TransactionDTO struct {
	ID              string `json:"id"`
	Direction       string `json:"direction"`
	Amount          string `json:"amount"`
	SourceType      string `json:"source_type"`
	AccountID       string `json:"account_id,omitempty"`
	PlatformID      string `json:"platform_id,omitempty"`
	GameID          string `json:"game_id,omitempty"`
	WithdrawSubtype string `json:"withdraw_subtype,omitempty"`
	Notes           string `json:"notes,omitempty"`
	OperatorID      string `json:"operator_id"`
	CreatedAt       string `json:"created_at"`
	DeletedAt       string `json:"deleted_at,omitempty"`
	DeletedBy       string `json:"deleted_by,omitempty"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:              string(tx.ID),
		Direction:       string(tx.Direction),
		Amount:          tx.Amount.String(),
		SourceType:      string(tx.SourceType),
		AccountID:       string(tx.AccountID),
		PlatformID:      string(tx.PlatformID),
		GameID:          string(tx.GameID),
		WithdrawSubtype: string(tx.WithdrawSubtype),
		Notes:           tx.Notes,
		OperatorID:      string(tx.OperatorID),
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.DeletedAt != nil {
		dto.DeletedAt = tx.DeletedAt.Format(time.RFC3339)
		dto.DeletedBy = string(tx.DeletedBy)
	}
	return dto
}

// HistoryResponse is one page of filtered history.
type HistoryResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	Total        int              `json:"total"`
	Limit        int              `json:"limit"`
	Offset       int              `json:"offset"`
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID                   string `json:"id"`
	Nickname             string `json:"nickname"`
	Tag                  string `json:"tag,omitempty"`
	Kind                 string `json:"kind"`
	Status               string `json:"status"`
	MonthlyInLimit       string `json:"monthly_in_limit"`
	MonthlyOutLimit      string `json:"monthly_out_limit"`
	ATMWithdrawalEnabled bool   `json:"atm_withdrawal_enabled"`
	CreatedAt            string `json:"created_at,omitempty"`
	UpdatedAt            string `json:"updated_at,omitempty"`
	DeletedAt            string `json:"deleted_at,omitempty"`
}

func toAccountDTO(a ledger.Account) AccountDTO {
	dto := AccountDTO{
		ID:                   string(a.ID),
		Nickname:             a.Nickname,
		Tag:                  a.Tag,
		Kind:                 string(a.Kind),
		Status:               string(a.Status),
		MonthlyInLimit:       a.MonthlyInLimit.String(),
		MonthlyOutLimit:      a.MonthlyOutLimit.String(),
		ATMWithdrawalEnabled: a.ATMWithdrawalEnabled,
		CreatedAt:            a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            a.UpdatedAt.Format(time.RFC3339),
	}
	if a.DeletedAt != nil {
		dto.DeletedAt = a.DeletedAt.Format(time.RFC3339)
	}
	return dto
}

// UpsertAccountRequest creates or updates an account.
type UpsertAccountRequest struct {
	ID                   string `json:"id,omitempty"`
	Nickname             string `json:"nickname"`
	Tag                  string `json:"tag,omitempty"`
	Kind                 string `json:"kind"`
	Status               string `json:"status,omitempty"`
	MonthlyInLimit       string `json:"monthly_in_limit"`
	MonthlyOutLimit      string `json:"monthly_out_limit"`
	ATMWithdrawalEnabled bool   `json:"atm_withdrawal_enabled"`
}

// PlatformDTO represents a payment platform in API responses.
type PlatformDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Tag         string `json:"tag,omitempty"`
	DepositURL  string `json:"deposit_url,omitempty"`
	WithdrawURL string `json:"withdraw_url,omitempty"`
	Balance     string `json:"balance"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
	DeletedAt   string `json:"deleted_at,omitempty"`
}

func toPlatformDTO(p ledger.Platform) PlatformDTO {
	dto := PlatformDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Tag:         p.Tag,
		DepositURL:  p.DepositURL,
		WithdrawURL: p.WithdrawURL,
		Balance:     p.Balance.String(),
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.DeletedAt != nil {
		dto.DeletedAt = p.DeletedAt.Format(time.RFC3339)
	}
	return dto
}

// UpsertPlatformRequest creates or updates a platform.
type UpsertPlatformRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Tag         string `json:"tag,omitempty"`
	DepositURL  string `json:"deposit_url,omitempty"`
	WithdrawURL string `json:"withdraw_url,omitempty"`
	Balance     string `json:"balance,omitempty"`
	Status      string `json:"status,omitempty"`
}

// GameDTO represents a game in API responses.
type GameDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tag       string `json:"tag,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	DeletedAt string `json:"deleted_at,omitempty"`
}

func toGameDTO(g ledger.Game) GameDTO {
	dto := GameDTO{
		ID:        string(g.ID),
		Name:      g.Name,
		Tag:       g.Tag,
		Status:    string(g.Status),
		CreatedAt: g.CreatedAt.Format(time.RFC3339),
	}
	if g.DeletedAt != nil {
		dto.DeletedAt = g.DeletedAt.Format(time.RFC3339)
	}
	return dto
}

// UpsertGameRequest creates or updates a game.
type UpsertGameRequest struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Tag    string `json:"tag,omitempty"`
	Status string `json:"status,omitempty"`
}

// PlayerDTO represents a registry entry in API responses.
type PlayerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FBLink    string `json:"fb_link,omitempty"`
	FriendOn  string `json:"friend_on,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at,omitempty"`
	DeletedAt string `json:"deleted_at,omitempty"`
}

func toPlayerDTO(p ledger.Player) PlayerDTO {
	dto := PlayerDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		FBLink:    p.FBLink,
		FriendOn:  p.FriendOn,
		Notes:     p.Notes,
		CreatedBy: string(p.CreatedBy),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.DeletedAt != nil {
		dto.DeletedAt = p.DeletedAt.Format(time.RFC3339)
	}
	return dto
}

// UpsertPlayerRequest creates or updates a player. The creator comes from
// the session, never from the body.
type UpsertPlayerRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	FBLink   string `json:"fb_link,omitempty"`
	FriendOn string `json:"friend_on,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// PlayerCreditDTO is one player's live balance.
type PlayerCreditDTO struct {
	Player      PlayerDTO `json:"player"`
	Balance     string    `json:"balance"`
	EntryCount  int       `json:"entry_count"`
	LastEntryAt string    `json:"last_entry_at,omitempty"`
}

func toPlayerCreditDTO(c ledger.PlayerCredit) PlayerCreditDTO {
	dto := PlayerCreditDTO{
		Player:     toPlayerDTO(c.Player),
		Balance:    c.Balance.String(),
		EntryCount: c.EntryCount,
	}
	if c.LastEntryAt != nil {
		dto.LastEntryAt = c.LastEntryAt.Format(time.RFC3339)
	}
	return dto
}

// CreditEntryDTO is one line of a player's credit history. The amount is
// signed: positive raised the balance, negative settled it.
type CreditEntryDTO struct {
	ID         string `json:"id"`
	PlayerID   string `json:"player_id"`
	Kind       string `json:"kind"`
	Amount     string `json:"amount"`
	Notes      string `json:"notes,omitempty"`
	OperatorID string `json:"operator_id"`
	CreatedAt  string `json:"created_at"`
}

func toCreditEntryDTO(e ledger.CreditEntry) CreditEntryDTO {
	return CreditEntryDTO{
		ID:         string(e.ID),
		PlayerID:   string(e.PlayerID),
		Kind:       string(e.Kind),
		Amount:     e.Amount.String(),
		Notes:      e.Notes,
		OperatorID: string(e.OperatorID),
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
}

// CreateCreditRequest appends a credit book line.
type CreateCreditRequest struct {
	PlayerID string `json:"player_id"`
	Kind     string `json:"kind"`
	Amount   string `json:"amount"`
	Notes    string `json:"notes,omitempty"`
}

// OperatorDTO represents an operator in API responses.
type OperatorDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toOperatorDTO(o ledger.Operator) OperatorDTO {
	return OperatorDTO{
		ID:        string(o.ID),
		Name:      o.Name,
		Role:      string(o.Role),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

// UpsertOperatorRequest creates or updates an operator.
type UpsertOperatorRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

// RangeTotalsDTO serializes movement totals for a window.
type RangeTotalsDTO struct {
	Deposits         string `json:"deposits"`
	Withdrawals      string `json:"withdrawals"`
	ATMWithdrawals   string `json:"atm_withdrawals"`
	NetFlow          string `json:"net_flow"`
	TransactionCount int    `json:"transaction_count"`
}

func toRangeTotalsDTO(t reporting.RangeTotals) RangeTotalsDTO {
	return RangeTotalsDTO{
		Deposits:         t.Deposits.String(),
		Withdrawals:      t.Withdrawals.String(),
		ATMWithdrawals:   t.ATMWithdrawals.String(),
		NetFlow:          t.NetFlow().String(),
		TransactionCount: t.Count,
	}
}

// MonthlyReportDTO is the headline month report.
type MonthlyReportDTO struct {
	Month               string `json:"month"`
	TotalDeposits       string `json:"total_deposits"`
	TotalWithdrawals    string `json:"total_withdrawals"`
	TotalATMWithdrawals string `json:"total_atm_withdrawals"`
	NetFlow             string `json:"net_flow"`
	TransactionCount    int    `json:"transaction_count"`
}

func toMonthlyReportDTO(r reporting.MonthlyReport) MonthlyReportDTO {
	return MonthlyReportDTO{
		Month:               r.Month,
		TotalDeposits:       r.TotalDeposits.String(),
		TotalWithdrawals:    r.TotalWithdrawals.String(),
		TotalATMWithdrawals: r.TotalATMWithdrawals.String(),
		NetFlow:             r.NetFlow.String(),
		TransactionCount:    r.TransactionCount,
	}
}

// AccountStatsDTO is one account's limit picture for the current month.
type AccountStatsDTO struct {
	Account       AccountDTO `json:"account"`
	MonthIn       string     `json:"month_in"`
	MonthOut      string     `json:"month_out"`
	RemainingIn   string     `json:"remaining_in"`
	RemainingOut  string     `json:"remaining_out"`
	InPercentage  int        `json:"in_percentage"`
	OutPercentage int        `json:"out_percentage"`
	NearInLimit   bool       `json:"near_in_limit"`
	NearOutLimit  bool       `json:"near_out_limit"`
	CriticalIn    bool       `json:"critical_in"`
	CriticalOut   bool       `json:"critical_out"`
}

func toAccountStatsDTO(s ledger.AccountStats) AccountStatsDTO {
	return AccountStatsDTO{
		Account:       toAccountDTO(s.Account),
		MonthIn:       s.Usage.In.String(),
		MonthOut:      s.Usage.Out.String(),
		RemainingIn:   s.RemainingIn.String(),
		RemainingOut:  s.RemainingOut.String(),
		InPercentage:  s.InPercentage,
		OutPercentage: s.OutPercentage,
		NearInLimit:   s.NearInLimit,
		NearOutLimit:  s.NearOutLimit,
		CriticalIn:    s.CriticalIn,
		CriticalOut:   s.CriticalOut,
	}
}

// =============================================================================
// AUTH
// =============================================================================

// LoginRequest opens a session for an operator.
type LoginRequest struct {
	OperatorID string `json:"operator_id"`
}

// LoginResponse carries the bearer token. The token is shown exactly once;
// only its hash is stored.
type LoginResponse struct {
	Token      string `json:"token"`
	OperatorID string `json:"operator_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

// ErrorResponse is the generic error shape for non-Result failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// parseAmount parses a client-supplied decimal string. A zero value with
// ok=false means the field was absent or malformed.
func parseAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
