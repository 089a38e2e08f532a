package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/cache"
	"github.com/example/campusdelivery/internal/config"
	"github.com/example/campusdelivery/internal/database"
)

var rootCmd = &cobra.Command{
	Use:   "campusdelivery",
	Short: "Campus delivery order and delivery lifecycle service",
	Long: `Campus delivery takes carts to confirmed orders inside a delivery zone,
reserves stock, and tracks each order through assignment, pickup and
code-verified handover.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	return database.Connect(cfg.DatabaseURL, cfg.LogLevel == "debug")
}

// openCache connects to redis when enabled. A failed connection degrades to
// a nil cache, which every caller treats as disabled.
func openCache(cfg *config.Config) *cache.RedisCache {
	redisCache, err := cache.NewRedisCache(cache.Config{
		Enabled:  cfg.RedisEnabled,
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize Redis cache, continuing without caching")
		return nil
	}
	return redisCache
}
