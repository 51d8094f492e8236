package main

import (
	"flag"
	"log"

	"github.com/promptops/scheduler/internal/bootstrap"
	"github.com/promptops/scheduler/internal/infra/persistence/executionrepo"
	"github.com/promptops/scheduler/internal/infra/persistence/taskrepo"
	"github.com/promptops/scheduler/pkg/config"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := bootstrap.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&taskrepo.TaskPo{}, &executionrepo.ExecutionPo{}); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	log.Println("Migration complete")
}
