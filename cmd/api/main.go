package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/avolkov/smartstore/internal/cart"
	"github.com/avolkov/smartstore/internal/cart/mirror"
	"github.com/avolkov/smartstore/internal/catalog"
	"github.com/avolkov/smartstore/internal/catalog/cache"
	"github.com/avolkov/smartstore/internal/checkout"
	"github.com/avolkov/smartstore/internal/coupon"
	"github.com/avolkov/smartstore/internal/events"
	"github.com/avolkov/smartstore/internal/httpapi"
	"github.com/avolkov/smartstore/internal/order"
	"github.com/avolkov/smartstore/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	MongoURI    string
	MongoDBName string
	Mongo       mirror.ConnectOptions

	RedisAddr     string
	RedisPassword string

	CatalogDBPath         string
	CatalogMigrationsPath string

	Postgres order.Credentials

	KafkaBrokers []string

	CheckoutPreset string
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "storedb"),
		Mongo: mirror.ConnectOptions{
			ConnectTimeout:         time.Duration(getEnvInt("MONGO_CONNECT_TIMEOUT_SECONDS", 10)) * time.Second,
			ServerSelectionTimeout: time.Duration(getEnvInt("MONGO_SELECT_TIMEOUT_SECONDS", 5)) * time.Second,
			MaxPoolSize:            uint64(getEnvInt("MONGO_MAX_POOL_SIZE", 100)),
			MinPoolSize:            uint64(getEnvInt("MONGO_MIN_POOL_SIZE", 10)),
		},

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "migrations/sqlite"),

		Postgres: order.Credentials{
			Host:              getEnv("POSTGRES_HOST", "localhost"),
			Port:              getEnvInt("POSTGRES_PORT", 5432),
			User:              getEnv("POSTGRES_USER", "store"),
			Password:          getEnv("POSTGRES_PASSWORD", "store"),
			DBName:            getEnv("POSTGRES_DB", "storedb"),
			MigrationsDirPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
		},

		KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),

		CheckoutPreset: getEnv("CHECKOUT_PRESET", "standard"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Cart mirror (MongoDB)
	mongoDB, err := mirror.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName, cfg.Mongo)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	cartMirror := mirror.NewMongoMirror(mongoDB)
	if err := cartMirror.CreateIndexes(ctx); err != nil {
		log.Fatalf("Failed to create cart indexes: %v", err)
	}
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	// Catalog (SQLite) with Redis read cache
	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatalf("Failed to open catalog database: %v", err)
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		log.Fatalf("Failed to run catalog migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")

	catalogSvc := catalog.NewService(catalogRepo, cache.NewRedisCache(redisClient))

	// Orders and coupons (Postgres)
	orderRepo, err := order.NewRepository(&cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(&cfg.Postgres); err != nil {
		log.Fatalf("Failed to run order migrations: %v", err)
	}
	log.Printf("Connected to postgres at %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)

	couponRepo := coupon.NewRepository(orderRepo.DB())
	couponLookup := coupon.NewLookup(couponRepo)

	// Cart store and checkout
	carts := cart.NewStore(cartMirror)
	pricingCfg := pricing.ConfigByName(cfg.CheckoutPreset)
	checkoutSvc := checkout.NewService(carts, couponLookup, couponRepo, catalogSvc, orderRepo, pricingCfg)

	// Outbox → Kafka, and the cart-clear consumer
	poller := events.NewOutboxPoller(orderRepo, cfg.KafkaBrokers...)
	go poller.Run(ctx)
	defer poller.Close()

	consumer := events.NewCartClearConsumer(carts, cfg.KafkaBrokers...)
	go consumer.Run(ctx)
	defer consumer.Close()

	// HTTP surface
	cartHandler := httpapi.NewCartHandler(carts, catalogSvc, cfg.RequestTimeout)
	checkoutHandler := httpapi.NewCheckoutHandler(checkoutSvc, cfg.RequestTimeout)
	productHandler := httpapi.NewProductHandler(catalogSvc, cfg.RequestTimeout)
	ordersHandler := httpapi.NewOrdersHandler(orderRepo, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(httpapi.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(httpapi.AuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Delete("/", cartHandler.ClearCart)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/preview", checkoutHandler.Preview)
			r.Post("/coupon", checkoutHandler.CheckCoupon)
			r.Post("/", checkoutHandler.PlaceOrder)
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{id}", productHandler.GetProduct)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{id}", ordersHandler.GetOrder)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "smartstore-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront API starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
