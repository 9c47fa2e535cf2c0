package orpheusplus

import (
	"fmt"
	"path/filepath"

	"github.com/nickyhof/orpheusplus/config"
	"github.com/nickyhof/orpheusplus/core"
	"github.com/nickyhof/orpheusplus/db"
	"github.com/nickyhof/orpheusplus/ps"
	"github.com/nickyhof/orpheusplus/store"
	log "github.com/sirupsen/logrus"
)

// metadataDir is the metadata repository below the configured root.
const metadataDir = "metadata"

type Instance struct {
	Persistence *ps.Persistence
	Store       *store.Engine
	Database    string
}

func Open(persistence *ps.Persistence, engine *store.Engine, database string) *Instance {
	return &Instance{
		Persistence: persistence,
		Store:       engine,
		Database:    database,
	}
}

// OpenConfig connects to the physical engine and the metadata repository
// named by cfg. An empty root directory keeps the metadata in memory.
func OpenConfig(cfg config.Config) (*Instance, error) {
	engine, err := store.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}

	var persistence *ps.Persistence
	if cfg.RootDir == "" {
		persistence, err = ps.NewMemoryPersistence()
	} else {
		var gitURL *string
		if cfg.GitURL != "" {
			gitURL = &cfg.GitURL
		}
		persistence, err = ps.NewFilePersistence(filepath.Join(cfg.RootDir, metadataDir), gitURL)
	}
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to open metadata repository: %w", err)
	}

	log.WithFields(log.Fields{"driver": cfg.Driver, "database": cfg.Database, "root": cfg.RootDir}).Debug("opened instance")
	return Open(persistence, engine, cfg.Database), nil
}

// Engine returns an engine working in the identity's workspace.
func (instance *Instance) Engine(identity core.Identity) *db.Engine {
	return db.NewEngine(instance.Persistence, instance.Store, identity, instance.Database)
}

func (instance *Instance) Close() error {
	return instance.Store.Close()
}
