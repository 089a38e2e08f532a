package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/campusdelivery/internal/config"
	"github.com/example/campusdelivery/internal/database"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/services"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo zones, products and users",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.IsProduction() {
		return errors.New("seed command is disabled in production")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := seedUsers(tx); err != nil {
			return err
		}
		if err := seedProducts(tx); err != nil {
			return err
		}
		if err := seedZones(tx); err != nil {
			return err
		}
		log.Info().Msg("demo data loaded")
		return nil
	})
	if err != nil {
		return err
	}

	redisCache := openCache(cfg)
	defer redisCache.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := services.InvalidateZones(ctx, redisCache); err != nil {
		log.Warn().Err(err).Msg("failed to drop cached zones; they expire with their TTL")
	}
	return nil
}

func seedUsers(tx *gorm.DB) error {
	users := []models.User{
		{Name: "Campus Admin", Phone: "+265990000001", Email: "admin@campus.test", Role: models.RoleAdmin, IsActive: true},
		{Name: "Rider One", Phone: "+265990000002", Email: "rider1@campus.test", Role: models.RoleDelivery, IsActive: true},
		{Name: "Demo Student", Phone: "+265990000003", Email: "student@campus.test", Role: models.RoleCustomer, IsActive: true},
	}
	err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(&users).Error
	return errors.Wrap(err, "seed users")
}

func seedProducts(tx *gorm.DB) error {
	products := []models.Product{
		{Name: "Bottled Water 500ml", SKU: "DRK-001", Price: decimal.NewFromInt(500), StockQuantity: 200, IsActive: true},
		{Name: "Chambo Rice Box", SKU: "FD-001", Price: decimal.NewFromInt(3500), StockQuantity: 40, IsActive: true},
		{Name: "Exercise Book A4", SKU: "ST-001", Price: decimal.NewFromInt(1200), StockQuantity: 120, IsActive: true},
		{Name: "Phone Charger USB-C", SKU: "EL-001", Price: decimal.NewFromInt(6500), StockQuantity: 15, IsActive: true},
	}
	err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sku"}}, DoNothing: true}).
		Create(&products).Error
	return errors.Wrap(err, "seed products")
}

func seedZones(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&models.DeliveryZone{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count zones")
	}
	if count > 0 {
		return nil
	}

	zones := []models.DeliveryZone{
		{Name: "Main Campus", CenterLatitude: -15.3893, CenterLongitude: 35.3374, RadiusMeters: 1500, DeliveryFee: decimal.NewFromInt(500), IsActive: true},
		{Name: "Student Village", CenterLatitude: -15.3801, CenterLongitude: 35.3302, RadiusMeters: 800, DeliveryFee: decimal.NewFromInt(300), IsActive: true},
	}
	if err := tx.Create(&zones).Error; err != nil {
		return errors.Wrap(err, "seed circle zones")
	}

	hostels := models.DeliveryLocation{
		Name:        "Hostel Block",
		DeliveryFee: decimal.NewFromInt(400),
		IsActive:    true,
		Points: []models.DeliveryLocationPoint{
			{Position: 0, Latitude: -15.3850, Longitude: 35.3330},
			{Position: 1, Latitude: -15.3850, Longitude: 35.3390},
			{Position: 2, Latitude: -15.3910, Longitude: 35.3390},
			{Position: 3, Latitude: -15.3910, Longitude: 35.3330},
		},
	}
	return errors.Wrap(tx.Create(&hostels).Error, "seed polygon zones")
}
