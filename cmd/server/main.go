package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/api"
	"github.com/citydrive/carshare-backend/internal/auth0"
	"github.com/citydrive/carshare-backend/internal/database"
	"github.com/citydrive/carshare-backend/internal/middleware"
	"github.com/citydrive/carshare-backend/internal/o11y"
	"github.com/citydrive/carshare-backend/reservation"
	"github.com/citydrive/carshare-backend/ride"
	"github.com/citydrive/carshare-backend/vehicle"
)

var cli = struct {
	DatabaseURL string `name:"database-url" env:"DATABASE_URL" default:"carshare.db" help:"postgres:// URL or sqlite file path"`
	Port        int    `name:"port" env:"PORT" default:"8080"`

	Auth0Domain string `name:"auth0-domain" env:"AUTH0_DOMAIN"`
	Audience    string `name:"audience" env:"AUDIENCE"`

	OTLPEndpoint string `name:"otlp-endpoint" env:"OTLP_ENDPOINT" default:"localhost:4318"`

	MetricsUsername string `name:"metrics-username" env:"METRICS_USERNAME"`
	MetricsPassword string `name:"metrics-password" env:"METRICS_PASSWORD"`

	AllowedOrigins []string `name:"allowed-origins" env:"ALLOWED_ORIGINS" default:"http://localhost:5000"`
}{}

func main() {
	if err := run(); err != nil {
		log.Fatalf("unexpected error: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	_ = godotenv.Load()
	kong.Parse(&cli)

	db, err := database.Open(ctx, cli.DatabaseURL, true)
	if err != nil {
		return err
	}
	defer db.Close()

	vr := vehicle.NewRepository(db)
	if err := vr.Seed(ctx); err != nil {
		return err
	}

	obs, cleanup, err := o11y.Setup(ctx, cli.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer cleanup()

	store := account.NewSQLStore(db)
	locks := account.NewLocks()
	rides := ride.NewManager(store, locks, obs.Logger)
	defer rides.Stop()
	reservations := reservation.NewRegistry(store, rides, locks, obs.Logger)
	defer reservations.Stop()
	reservations.OnExpire = func(string, account.Reservation) {
		middleware.ReservationsExpired.Inc()
	}

	a, err := api.New(api.Config{
		Vehicles:        vr,
		Store:           store,
		Locks:           locks,
		Rides:           rides,
		Reservations:    reservations,
		Auth0:           auth0.NewHTTPClient(cli.Auth0Domain),
		Obs:             obs,
		Auth0Domain:     cli.Auth0Domain,
		Audience:        cli.Audience,
		MetricsUsername: cli.MetricsUsername,
		MetricsPassword: cli.MetricsPassword,
		AllowedOrigins:  cli.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	serv := http.Server{
		Addr:    fmt.Sprintf(":%d", cli.Port),
		Handler: a.Router(),
	}

	go func() {
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return serv.Shutdown(ctx)
}
