package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pdvsystem/backend/internal/domain"
)

const dayLayout = "2006-01-02"

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func terminalID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(terminalHeader))
}

func (a *API) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionOpenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	session, err := a.service.OpenSession(r.Context(), terminalID(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.SessionStatus(r.Context(), terminalID(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	var req domain.SessionCloseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	session, err := a.service.CloseSession(r.Context(), terminalID(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("day"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, errors.New("day is required (YYYY-MM-DD)"))
		return
	}
	day, err := time.Parse(dayLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("day must be formatted as YYYY-MM-DD"))
		return
	}

	sessions, err := a.service.SessionHistory(r.Context(), day)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	receipt, err := a.service.CreateSale(r.Context(), terminalID(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	receipts, err := a.service.ListSales(r.Context(), strings.TrimSpace(r.URL.Query().Get("session_id")))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, err := parseNonNegative(q.Get("skip"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("skip "+err.Error()))
		return
	}
	limit, err := parseNonNegative(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("limit "+err.Error()))
		return
	}
	activeOnly := false
	if raw := strings.TrimSpace(q.Get("active_only")); raw != "" {
		activeOnly, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("active_only must be a boolean"))
			return
		}
	}

	products, err := a.service.ListProducts(r.Context(), domain.ProductFilter{Skip: skip, Limit: limit, ActiveOnly: activeOnly})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleProductByBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.ProductByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddStock(w http.ResponseWriter, r *http.Request) {
	quantity, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("quantity")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("quantity must be a number"))
		return
	}

	id := chi.URLParam(r, "id")
	movement, err := a.service.AddStock(r.Context(), id, quantity)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	product, err := a.service.GetProduct(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"movement":     movement,
		"new_quantity": product.StockQuantity,
	})
}

func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	movement, err := a.service.AdjustStock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MovementFilter{ProductID: strings.TrimSpace(q.Get("product_id"))}

	rawType := q.Get("movement_type")
	if rawType == "" {
		rawType = q.Get("type")
	}
	if strings.TrimSpace(rawType) != "" {
		typ, err := domain.ParseMovementType(rawType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Type = typ
	}
	if raw := strings.TrimSpace(q.Get("start_date")); raw != "" {
		from, err := time.ParseInLocation(dayLayout, raw, a.service.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("start_date must be formatted as YYYY-MM-DD"))
			return
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		end, err := time.ParseInLocation(dayLayout, raw, a.service.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("end_date must be formatted as YYYY-MM-DD"))
			return
		}
		// Inclusive of the whole end day.
		to := end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &to
	}

	history, err := a.service.StockHistory(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	// Rows are streamed. Once the array has started the status is committed,
	// so a late failure can only cut the response short.
	first := true
	enc := json.NewEncoder(w)
	for rec, err := range history {
		if err != nil {
			if first {
				a.writeServiceError(w, r, err)
				return
			}
			a.log.Error().Err(err).Msg("stock history stream aborted")
			return
		}
		if first {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("["))
			first = false
		} else {
			_, _ = w.Write([]byte(","))
		}
		_ = enc.Encode(rec)
	}
	if first {
		writeJSON(w, http.StatusOK, []domain.MovementRecord{})
		return
	}
	_, _ = w.Write([]byte("]\n"))
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("active_only")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("active_only must be a boolean"))
			return
		}
		activeOnly = v
	}

	users, err := a.service.ListUsers(r.Context(), activeOnly)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := a.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
