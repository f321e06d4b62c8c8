package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/internal/auth0"
	"github.com/citydrive/carshare-backend/internal/middleware"
	"github.com/citydrive/carshare-backend/internal/o11y"
	"github.com/citydrive/carshare-backend/reservation"
	"github.com/citydrive/carshare-backend/ride"
	"github.com/citydrive/carshare-backend/vehicle"
)

type Config struct {
	Vehicles     vehicle.Source
	Store        account.Store
	// Locks is the per-user record lock shared with Rides and Reservations.
	Locks        *account.Locks
	Rides        *ride.Manager
	Reservations *reservation.Registry
	Auth0        auth0.Client
	Obs          *o11y.Observability

	Auth0Domain string
	Audience    string

	MetricsUsername string
	MetricsPassword string

	// AllowedOrigins for the browser UI.
	AllowedOrigins []string

	// AuthMiddleware overrides the JWT validator; tests inject a fake here.
	AuthMiddleware gin.HandlerFunc
}

type API struct {
	r   *gin.Engine
	cfg Config
}

func New(cfg Config) (*API, error) {
	a := &API{
		r:   gin.New(),
		cfg: cfg,
	}

	a.r.Use(gin.Recovery())
	a.r.Use(middleware.Tracing())
	if cfg.Obs != nil {
		a.r.Use(middleware.Logging(cfg.Obs.Logger))
		a.r.Use(middleware.Metrics(cfg.Obs.Registry))
	}

	if len(cfg.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		a.r.Use(cors.New(corsCfg))
	}

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if cfg.Obs != nil {
		metrics := gin.WrapH(promhttp.HandlerFor(cfg.Obs.Registry, promhttp.HandlerOpts{}))
		if cfg.MetricsUsername != "" {
			authed := a.r.Group("/", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}))
			authed.GET("/metrics", metrics)
		} else {
			a.r.GET("/metrics", metrics)
		}
	}

	a.r.GET("/vehicles/nearby", a.vehiclesNearbyHandler)
	a.r.GET("/vehicles/:plate", a.vehicleHandler)

	authMW := cfg.AuthMiddleware
	if authMW == nil {
		mw, err := middleware.EnsureValidToken(cfg.Auth0Domain, cfg.Audience)
		if err != nil {
			return nil, err
		}
		authMW = mw
	}

	protected := a.r.Group("/", authMW, a.ensureAccount)
	{
		protected.GET("/me", a.profileHandler)
		protected.PUT("/me/profile", a.updateProfileHandler)
		protected.GET("/me/balance", a.balanceHandler)
		protected.POST("/me/balance", a.topUpBalanceHandler)
		protected.GET("/me/cards", a.cardsHandler)
		protected.POST("/me/cards", a.addCardHandler)
		protected.DELETE("/me/cards/:number", a.removeCardHandler)

		protected.POST("/ride/start", a.startRideHandler)
		protected.GET("/ride/current", a.currentRideHandler)
		protected.POST("/ride/end", a.endRideHandler)

		protected.GET("/history", a.historyHandler)

		protected.GET("/reservations", a.getReservationsHandler)
		protected.POST("/reservations", a.createReservationHandler)
		protected.PUT("/reservations/:id", a.editReservationHandler)
		protected.DELETE("/reservations/:id", a.cancelReservationHandler)
		protected.POST("/reservations/:id/start", a.startReservationHandler)
		protected.GET("/reservations/:id/countdown", a.countdownHandler)
	}

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// ensureAccount lazily creates the signed-in user's record on their first
// authenticated request, seeding the profile from the identity provider.
func (a *API) ensureAccount(c *gin.Context) {
	logger := middleware.GetLogger(c)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return
	}

	_, err := a.cfg.Store.Get(c.Request.Context(), userID)
	if err == nil {
		c.Next()
		return
	}
	if !errors.Is(err, account.ErrNotFound) {
		logger.Error("Failed to get account", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var name, email, phone string
	phone = auth0.DefaultPhone
	if a.cfg.Auth0 != nil {
		info, uerr := a.cfg.Auth0.GetUserInfo(c.Request.Context(), bearerToken(c))
		if uerr != nil {
			logger.Warn("Failed to fetch user info, creating bare account", "error", uerr)
		} else {
			name, email, phone = info.Name, info.Email, info.Phone()
		}
	}

	a.cfg.Locks.Lock(userID)
	_, err = account.Bootstrap(c.Request.Context(), a.cfg.Store, userID, name, email, phone)
	a.cfg.Locks.Unlock(userID)
	if err != nil {
		logger.Error("Failed to create account", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Next()
}

func bearerToken(c *gin.Context) string {
	return strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
}

// getAccount loads the signed-in user's record. ensureAccount has already
// run, so a missing record is an internal error.
func (a *API) getAccount(c *gin.Context) (account.Account, string, bool) {
	logger := middleware.GetLogger(c)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return account.Account{}, "", false
	}

	acct, err := a.cfg.Store.Get(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Failed to get account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return account.Account{}, "", false
	}
	return acct, userID, true
}

// lockedAccount loads the record with the user's lock held, so the
// handler's read-modify-write cannot interleave with a ride or reservation
// transition. The caller defers unlock.
func (a *API) lockedAccount(c *gin.Context) (account.Account, string, func(), bool) {
	logger := middleware.GetLogger(c)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return account.Account{}, "", nil, false
	}

	a.cfg.Locks.Lock(userID)
	acct, err := a.cfg.Store.Get(c.Request.Context(), userID)
	if err != nil {
		a.cfg.Locks.Unlock(userID)
		logger.Error("Failed to get account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return account.Account{}, "", nil, false
	}
	return acct, userID, func() { a.cfg.Locks.Unlock(userID) }, true
}
