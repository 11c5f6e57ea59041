package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedCatalog(db)

	log.Println("Seeding completed successfully!")
}

func seedCatalog(db *sql.DB) {
	// Prices in minor units.
	entries := []struct {
		ID       string
		Kind     string
		Price    int64
		Currency string
	}{
		{"nda", "document", 1500, "EUR"},
		{"employment-contract", "document", 2500, "EUR"},
		{"rental-agreement", "document", 2000, "EUR"},
		{"privacy-policy", "document", 1800, "EUR"},
		{"terms-of-service", "document", 1800, "EUR"},
		{"power-of-attorney", "document", 1200, "EUR"},
		{"last-will", "document", 3500, "EUR"},
		{"startup-pack", "package", 7900, "EUR"},
		{"landlord-pack", "package", 5900, "EUR"},
		{"gdpr-pack", "package", 4900, "EUR"},
	}

	log.Println("Seeding price catalog...")
	for _, e := range entries {
		_, err := db.Exec(`
			INSERT INTO catalog_entries (id, kind, price, currency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id, kind) DO UPDATE SET price = EXCLUDED.price, currency = EXCLUDED.currency, updated_at = now()`,
			e.ID, e.Kind, e.Price, e.Currency)
		if err != nil {
			log.Fatalf("Failed to seed catalog entry %s/%s: %v", e.ID, e.Kind, err)
		}
	}
	log.Printf("Seeded %d catalog entries", len(entries))
}
