package main

import (
	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/models"
	"github.com/imglink/imglink/routes"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Upload{}, &models.FailedDeletion{})

	objects, err := storage.NewS3Store(cfg)
	if err != nil {
		utils.Sugar.Fatalf("object storage init failed: %v", err)
	}

	r := routes.SetupRouter(db, objects)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
