package main

import (
	"log"
	"os"

	"ai-taskagent-be/internal/entity"
	"ai-taskagent-be/internal/model"
	"ai-taskagent-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/datatypes"
)

// Seeds a demo workspace: one user plus a handful of customers and
// products the agent can resolve against. Safe to re-run.
func main() {
	// Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDB(dsn, database.DefaultOptions())
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Seeding Demo User...")

	demoUser := model.User{
		Id:       uuid.New(),
		Email:    "demo@taskagent.local",
		FullName: "Demo User",
		Role:     "user",
		Status:   "active",
	}

	var existing model.User
	if err := db.Where("email = ?", demoUser.Email).First(&existing).Error; err == nil {
		log.Printf("User '%s' already exists, skipping...", demoUser.Email)
		demoUser = existing
	} else if err := db.Create(&demoUser).Error; err != nil {
		log.Fatalf("Error creating demo user: %v", err)
	}

	log.Println("Seeding Sample Records...")

	records := []model.Record{
		{ModelType: entity.ModelTypeCustomer, Name: "John Smith", Attributes: datatypes.JSONMap{"name": "John Smith", "email": "john.smith@example.com"}},
		{ModelType: entity.ModelTypeCustomer, Name: "John Smithson", Attributes: datatypes.JSONMap{"name": "John Smithson", "email": "j.smithson@example.com"}},
		{ModelType: entity.ModelTypeCustomer, Name: "Maria Garcia", Attributes: datatypes.JSONMap{"name": "Maria Garcia", "phone": "+1-555-0142"}},
		{ModelType: entity.ModelTypeProduct, Name: "Espresso Beans 1kg", Attributes: datatypes.JSONMap{"name": "Espresso Beans 1kg", "price": 24.50}},
		{ModelType: entity.ModelTypeProduct, Name: "Oat Milk 1L", Attributes: datatypes.JSONMap{"name": "Oat Milk 1L", "price": 3.20}},
		{ModelType: entity.ModelTypeProduct, Name: "Filter Papers", Attributes: datatypes.JSONMap{"name": "Filter Papers", "price": 5.00}},
	}

	for _, r := range records {
		var found model.Record
		if err := db.Where("user_id = ? AND model_type = ? AND name = ?", demoUser.Id, r.ModelType, r.Name).First(&found).Error; err == nil {
			log.Printf("Record '%s' already exists, skipping...", r.Name)
			continue
		}

		r.Id = uuid.New()
		r.UserId = demoUser.Id
		if err := db.Create(&r).Error; err != nil {
			log.Printf("Error creating record '%s': %v", r.Name, err)
		} else {
			log.Printf("Created %s: %s", r.ModelType, r.Name)
		}
	}

	log.Println("✅ Seeding completed!")
}
