package main

import (
	"context"
	"net/http"
	"time"

	_ "time/tzdata"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/shiftworks/assignment-service/internal/app"
	"github.com/shiftworks/assignment-service/internal/config"
	"github.com/shiftworks/assignment-service/internal/constants"
	"github.com/shiftworks/assignment-service/internal/controllers"
	"github.com/shiftworks/assignment-service/internal/routes"
	"github.com/shiftworks/assignment-service/internal/utils"
)

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()
	defer cfg.Close()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize assignment-service:", err)
	}
	defer application.Close()

	if cfg.Env == config.EnvDev {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := application.EnsureSchema(ctx)
		cancel()
		if err != nil {
			utils.Logger.WithError(err).Fatal("Failed to bootstrap schema")
		}
	}

	svc := app.NewServices(cfg, application.DB)

	// Surface anything a previous run left for operators.
	if unsettled, err := svc.Settlement.ListUnsettled(context.Background()); err != nil {
		utils.Logger.WithError(err).Warn("Could not list unsettled assignments")
	} else if len(unsettled) > 0 {
		utils.Logger.Warnf("%d assignments have failed or skipped settlements", len(unsettled))
	}

	// Controllers
	healthController := controllers.NewHealthController(application)

	// Router setup
	router := mux.NewRouter()
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	// Cron job setup
	c := cron.New(cron.WithLocation(time.UTC))
	if cfg.LDFlag_SettlementReconcilerEnabled {
		_, err = c.AddFunc(constants.SettlementReconcileCronSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), constants.SettlementReconcileJobTimeout)
			defer cancel()
			utils.Logger.Info("Starting settlement reconcile cron job...")
			if err := svc.Settlement.ProcessDueSettlements(ctx); err != nil {
				utils.Logger.WithError(err).Error("Failed to process due settlements")
			}
		})
		if err != nil {
			utils.Logger.WithError(err).Fatal("Failed to schedule settlement reconcile cron")
		}
		c.Start()
		defer c.Stop()
		utils.Logger.Info("Scheduled settlement reconcile cron job")
	} else {
		utils.Logger.Warn("Settlement reconciler disabled by flag; failed settlements will not be retried")
	}

	allowedOrigins := []string{cfg.AppUrl}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, utils.CORSLowSecurityAllowedOriginLocalhost)
	}

	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, co.Handler(router)); err != nil {
		utils.Logger.Fatal("assignment-service failed to start:", err)
	}
}
