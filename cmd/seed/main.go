package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avdeev/go-market/internal/audit"
	"github.com/avdeev/go-market/internal/config"
	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/store"
)

// Bootstraps the catalog and customer tables from delimited files. All the
// file-format fiddling stays here; the store only ever sees typed rows.
func main() {
	categoriesPath := flag.String("categories", "categories.csv", "categories file")
	goodsPath := flag.String("goods", "goods.csv", "goods file")
	customersPath := flag.String("customers", "customers.csv", "customers file")
	flag.Parse()

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

	ctx := context.Background()

	auditLog := audit.New(auditDB)
	if err := auditLog.Init(ctx); err != nil {
		log.Fatalf("Init audit store: %v", err)
	}

	st := store.New(db, auditLog, logger)

	summary := st.SeedCategories(ctx, readCategories(*categoriesPath))
	log.Printf("Categories: %d inserted, %d skipped", summary.Inserted, summary.Skipped)

	summary = st.SeedGoods(ctx, readGoods(*goodsPath))
	log.Printf("Goods: %d inserted, %d skipped", summary.Inserted, summary.Skipped)

	summary = st.SeedCustomers(ctx, readCustomers(*customersPath))
	log.Printf("Customers: %d inserted, %d skipped", summary.Inserted, summary.Skipped)
}

func readRecords(path string, wantFields int) [][]string {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Open %s: %v", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	all, err := reader.ReadAll()
	if err != nil {
		log.Fatalf("Read %s: %v", path, err)
	}

	var records [][]string
	for _, record := range all {
		if len(record) < wantFields {
			log.Printf("Skipping short record in %s: %v", path, record)
			continue
		}
		records = append(records, record)
	}
	return records
}

func readCategories(path string) []store.CategoryRow {
	var rows []store.CategoryRow
	for _, record := range readRecords(path, 3) {
		id, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			log.Printf("Skipping category with bad id %q", record[0])
			continue
		}
		rows = append(rows, store.CategoryRow{
			ID:          id,
			Title:       record[1],
			Description: record[2],
		})
	}
	return rows
}

func readGoods(path string) []store.GoodRow {
	var rows []store.GoodRow
	for _, record := range readRecords(path, 4) {
		id, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			log.Printf("Skipping good with bad id %q", record[0])
			continue
		}
		price, err := decimal.NewFromString(record[2])
		if err != nil {
			log.Printf("Skipping good %d with bad price %q", id, record[2])
			continue
		}
		categoryID, err := strconv.ParseInt(record[3], 10, 64)
		if err != nil {
			categoryID = 0
		}
		rows = append(rows, store.GoodRow{
			ID:         id,
			Title:      record[1],
			Price:      price,
			CategoryID: categoryID,
		})
	}
	return rows
}

func readCustomers(path string) []store.CustomerRow {
	var rows []store.CustomerRow
	for _, record := range readRecords(path, 5) {
		id, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			log.Printf("Skipping customer with bad id %q", record[0])
			continue
		}
		rows = append(rows, store.CustomerRow{
			ID:        id,
			FirstName: record[1],
			LastName:  record[2],
			Email:     record[3],
			Gender:    record[4],
		})
	}
	return rows
}
