package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/auth"
	"github.com/sakif/lendpal/internal/model"
	"github.com/sakif/lendpal/internal/service"
)

// LendingHandler serves the catalog, the users and their loans.
type LendingHandler struct {
	lending *service.LendingService
	logger  *slog.Logger
}

func NewLendingHandler(lending *service.LendingService, logger *slog.Logger) *LendingHandler {
	return &LendingHandler{lending: lending, logger: logger}
}

type itemResponse struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	DefaultLendTime model.LendPeriod `json:"defaultLendTime"`
	Lent            bool             `json:"lent"`
}

type loanResponse struct {
	UserID  string    `json:"userId"`
	ItemID  string    `json:"itemId"`
	DueAt   time.Time `json:"dueAt"`
	Overdue bool      `json:"overdue"`
}

func (h *LendingHandler) itemOf(item model.Item) itemResponse {
	return itemResponse{
		ID:              item.ID,
		Name:            item.Name,
		Description:     item.Description,
		DefaultLendTime: item.DefaultLendTime,
		Lent:            h.lending.IsItemLent(item.ID),
	}
}

// loansOf lists a user's loans earliest due first, flagging those due
// before now.
func loansOf(u service.UserProfile, now time.Time) []loanResponse {
	out := make([]loanResponse, 0, len(u.LentItems))
	for itemID, due := range u.LentItems {
		out = append(out, loanResponse{UserID: u.ID, ItemID: itemID, DueAt: due, Overdue: due.Before(now)})
	}
	slices.SortFunc(out, func(a, b loanResponse) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return out
}

// =========================================================================
// ITEMS
// =========================================================================

// HandleListItems returns the catalog sorted by name.
//
// HTTP: GET /api/items
func (h *LendingHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	items := h.lending.GetAllItems()
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, h.itemOf(item))
	}
	writeJSON(w, http.StatusOK, out)
}

type createItemRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=2000"`
	DefaultLendTime string `json:"defaultLendTime"` // ISO 8601 period, e.g. "P14D"; empty for the default
}

// HandleCreateItem adds an item to the catalog.
//
// HTTP: POST /api/items
// REQUEST BODY: {"name": "Sirkelsag", "description": "Grønn, slitt.", "defaultLendTime": "P14D"}
func (h *LendingHandler) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var period model.LendPeriod
	if req.DefaultLendTime != "" {
		p, err := model.ParseLendPeriod(req.DefaultLendTime)
		if err != nil {
			writeError(w, apperror.ValidationFailed("defaultLendTime", "defaultLendTime must be an ISO 8601 period such as P14D"))
			return
		}
		period = p
	}

	item, err := h.lending.AddItem(r.Context(), req.Name, req.Description, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.itemOf(item))
}

// HandleGetItem returns one item.
//
// HTTP: GET /api/items/{id}
func (h *LendingHandler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, ok := h.lending.GetItem(id)
	if !ok {
		writeError(w, apperror.InvalidReference("item", id))
		return
	}
	writeJSON(w, http.StatusOK, h.itemOf(item))
}

// HandleDeleteItem removes an item that is not on loan.
//
// HTTP: DELETE /api/items/{id}
func (h *LendingHandler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.lending.RemoveItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleItemHolder returns the user who holds the item. An item that is
// not on loan gives 404.
//
// HTTP: GET /api/items/{id}/holder
func (h *LendingHandler) HandleItemHolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.lending.GetItem(id); !ok {
		writeError(w, apperror.InvalidReference("item", id))
		return
	}
	holder, ok := h.lending.GetItemHolder(id)
	if !ok {
		writeError(w, apperror.NotFound("holder of item", id))
		return
	}
	writeJSON(w, http.StatusOK, holder)
}

type lendResponse struct {
	ItemID string    `json:"itemId"`
	UserID string    `json:"userId"`
	DueAt  time.Time `json:"dueAt"`
}

// HandleLend checks the item out to the logged-in user. Lending an item
// the user already holds renews it.
//
// HTTP: POST /api/items/{id}/lend
func (h *LendingHandler) HandleLend(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	itemID := chi.URLParam(r, "id")

	due, err := h.lending.LendItem(r.Context(), userID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lendResponse{ItemID: itemID, UserID: userID, DueAt: due})
}

// HandleReturn returns an item held by the logged-in user.
//
// HTTP: POST /api/items/{id}/return
func (h *LendingHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.lending.ReturnItem(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// USERS
// =========================================================================

// HandleGetUser returns a user's public profile.
//
// HTTP: GET /api/users/{id}
func (h *LendingHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, ok := h.lending.GetUser(id)
	if !ok {
		writeError(w, apperror.InvalidReference("user", id))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUserLoans lists the items a user holds.
//
// HTTP: GET /api/users/{id}/loans
func (h *LendingHandler) HandleUserLoans(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, ok := h.lending.GetUser(id)
	if !ok {
		writeError(w, apperror.InvalidReference("user", id))
		return
	}
	writeJSON(w, http.StatusOK, loansOf(profile, h.lending.Now()))
}

// HandleDeleteUser removes a user who holds no items.
//
// HTTP: DELETE /api/users/{id}
func (h *LendingHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.lending.RemoveUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("user deleted via API", slog.String("userID", id))
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// LOANS
// =========================================================================

// HandleListLoans lists every outstanding loan, earliest due first.
//
// HTTP: GET /api/loans[?overdue=true]
func (h *LendingHandler) HandleListLoans(w http.ResponseWriter, r *http.Request) {
	overdueOnly := false
	if v := r.URL.Query().Get("overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("overdue", "overdue must be true or false"))
			return
		}
		overdueOnly = b
	}

	loans := h.lending.Loans()
	if overdueOnly {
		loans = h.lending.OverdueLoans()
	}

	now := h.lending.Now()
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, loanResponse{UserID: l.UserID, ItemID: l.ItemID, DueAt: l.DueAt, Overdue: l.Overdue(now)})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSave writes the registry to the store now.
//
// HTTP: POST /api/data/save
func (h *LendingHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	if err := h.lending.WriteData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "saved"})
}
