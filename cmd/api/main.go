package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avdeev/go-market/internal/audit"
	"github.com/avdeev/go-market/internal/config"
	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Init logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(cfg.Database.URL, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	auditDB, err := database.NewConnection(cfg.Audit.URL, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to audit database: %v", err)
	}
	defer auditDB.Close()

	auditLog := audit.New(auditDB)
	if err := auditLog.Init(context.Background()); err != nil {
		log.Fatalf("Init audit store: %v", err)
	}

	st := store.New(db, auditLog, logger)

	log.Printf("Connected to both stores successfully")

	mux := http.NewServeMux()

	mux.HandleFunc("/categories", handleCategories(st))
	mux.HandleFunc("/categories/", handleCategoryByID(st))
	mux.HandleFunc("/goods", handleGoods(st))
	mux.HandleFunc("/goods/", handleGoodByID(st))
	mux.HandleFunc("/catalog", handleCatalog(st))
	mux.HandleFunc("/deliveries", handleDeliveries(st))
	mux.HandleFunc("/customers", handleCustomers(st))
	mux.HandleFunc("/customers/", handleCustomerByID(st))
	mux.HandleFunc("/locators", handleLocators(st))
	mux.HandleFunc("/discounts/categories", handleCategoryDiscounts(st))
	mux.HandleFunc("/discounts/customers", handleCustomerDiscounts(st))
	mux.HandleFunc("/reports/revenue", handleRevenue(st))
	mux.HandleFunc("/reports/activity", handleActivity(st))
	mux.HandleFunc("/tables/", handleTableCount(st))
	mux.HandleFunc("/query", handleQuery(st))
	mux.HandleFunc("/audit", handleAudit(auditLog))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func handleCategories(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			ID          int64  `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		category, err := st.AddCategory(r.Context(), req.ID, req.Title, req.Description)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, category)
	}
}

func handleCategoryByID(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Path[len("/categories/"):], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid category ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			category, err := st.GetCategory(r.Context(), id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, category)

		case http.MethodDelete:
			if err := st.RemoveCategory(r.Context(), id); err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "removed": true})

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleGoods(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Title      string  `json:"title"`
				Price      float64 `json:"price"`
				CategoryID int64   `json:"category_id"`
				Count      int     `json:"count"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			goods, err := st.AddGoodUnits(ctx, req.Title, decimal.NewFromFloat(req.Price), req.CategoryID, req.Count)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, goods)

		case http.MethodGet:
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			if page < 1 {
				page = 1
			}
			pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
			if pageSize < 1 || pageSize > 100 {
				pageSize = 20
			}

			result, err := st.ListGoods(ctx, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleGoodByID(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rest := r.URL.Path[len("/goods/"):]
		parts := strings.SplitN(rest, "/", 2)

		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid good ID")
			return
		}

		if len(parts) == 1 {
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			good, err := st.GetGood(ctx, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, good)
			return
		}

		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		switch parts[1] {
		case "sell":
			var req struct {
				CustomerID *int64 `json:"customer_id"`
			}
			if r.ContentLength > 0 {
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					respondError(w, http.StatusBadRequest, "Invalid request body")
					return
				}
			}

			txn, err := st.Sell(ctx, id, req.CustomerID)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusCreated, txn)

		case "return":
			txn, err := st.ReturnGood(ctx, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusCreated, txn)

		case "transactions":
			txns, err := st.TransactionsForGood(ctx, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, txns)

		default:
			respondError(w, http.StatusNotFound, "Not found")
		}
	}
}

func handleCatalog(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		goods, err := st.ListGoodsByCategory(r.Context())
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, goods)
	}
}

func handleDeliveries(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			Title      string  `json:"title"`
			Price      float64 `json:"price"`
			CategoryID int64   `json:"category_id"`
			Quantity   int     `json:"quantity"`
			Note       string  `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		result, err := st.RecordDelivery(r.Context(), req.Title, decimal.NewFromFloat(req.Price), req.CategoryID, req.Quantity, req.Note)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, result)
	}
}

func handleCustomers(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Gender    string `json:"gender"`
			Note      string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		customer, err := st.AddCustomer(r.Context(), req.ID, req.FirstName, req.LastName, req.Gender, req.Note)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, customer)
	}
}

func handleCustomerByID(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Path[len("/customers/"):], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid customer ID")
			return
		}

		customer, err := st.GetCustomer(r.Context(), id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, customer)
	}
}

func handleLocators(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Email     string `json:"email"`
			Note      string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		locator, err := st.UpsertLocator(r.Context(), req.FirstName, req.LastName, req.Email, req.Note)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, locator)
	}
}

func handleCategoryDiscounts(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			CategoryID int64   `json:"category_id"`
			Title      string  `json:"title"`
			Discount   float64 `json:"discount"`
			Active     bool    `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		record, err := st.AddCategoryDiscount(r.Context(), req.CategoryID, req.Title, decimal.NewFromFloat(req.Discount), req.Active)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, record)
	}
}

func handleCustomerDiscounts(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			CustomerID int64   `json:"customer_id"`
			Title      string  `json:"title"`
			Discount   float64 `json:"discount"`
			Active     bool    `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		record, err := st.AddCustomerDiscount(r.Context(), req.CustomerID, req.Title, decimal.NewFromFloat(req.Discount), req.Active)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, record)
	}
}

func handleRevenue(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := parseDateRange(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		report, err := st.RevenueBetween(r.Context(), start, end)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, report)
	}
}

func handleActivity(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := parseDateRange(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		threshold := 0.2
		if v := r.URL.Query().Get("threshold"); v != "" {
			threshold, err = strconv.ParseFloat(v, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid threshold")
				return
			}
		}

		report, err := st.CustomerActivity(r.Context(), start, end, threshold)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, report)
	}
}

func handleTableCount(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := r.URL.Path[len("/tables/"):]
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[1] != "count" {
			respondError(w, http.StatusNotFound, "Not found")
			return
		}

		count, err := st.TableRowCount(r.Context(), parts[0])
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"table": parts[0], "count": count})
	}
}

func handleQuery(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		rows, err := st.ExecReadOnly(r.Context(), req.Query)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		respondJSON(w, http.StatusOK, rows)
	}
}

func handleAudit(auditLog *audit.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 500 {
			limit = 50
		}

		records, err := auditLog.Recent(r.Context(), limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondJSON(w, http.StatusOK, records)
	}
}

// parseDateRange reads start/end query params; the default window is the
// last 30 days.
func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return start, end, errors.New("invalid start date, want YYYY-MM-DD")
		}
		start = parsed
	}
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return start, end, errors.New("invalid end date, want YYYY-MM-DD")
		}
		end = parsed
	}

	return start, end, nil
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case database.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrGoodNotAvailable), errors.Is(err, database.ErrGoodNotSold):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrGoodNotFound),
		errors.Is(err, database.ErrCategoryNotFound),
		errors.Is(err, database.ErrCustomerNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrInsufficientData):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case database.IsRetryable(err):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
