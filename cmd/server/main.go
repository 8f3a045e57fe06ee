package main

import (
	"context"
	"database/sql"
	"log"

	"autoform/internal/api"
	"autoform/internal/compose"
	"autoform/internal/config"
	"autoform/internal/fieldconf"
	"autoform/internal/orm"
	"autoform/internal/schema"
	"autoform/internal/store/gormstore"
	"autoform/internal/store/memstore"
	"autoform/internal/store/pgstore"
)

func main() {
	cfg, err := config.LoadWithPath("autoform.json")
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	kind, _ := cfg.Backend()
	ctx := context.Background()

	var (
		backend orm.Backend
		load    api.Loader = api.LoadDSL
		prepare func(*schema.Registry) error
	)

	switch kind {
	case config.Memory:
		backend = memstore.New()
	case config.Postgres:
		db, err := pgstore.Open(cfg.DBURL)
		if err != nil {
			log.Fatalf("Ошибка подключения к Postgres: %v", err)
		}
		defer db.Close()
		backend = pgstore.New(db)
		if cfg.Introspect {
			load = introspect(db, cfg)
		} else if cfg.AutoMigrate {
			prepare = func(reg *schema.Registry) error {
				ddl, err := pgstore.GenerateDDL(reg)
				if err != nil {
					return err
				}
				return pgstore.ApplyDDL(ctx, db, ddl)
			}
		}
	case config.SQLite:
		db, err := gormstore.Open(cfg.SQLiteDSN())
		if err != nil {
			log.Fatalf("Ошибка открытия SQLite: %v", err)
		}
		backend = gormstore.New(db)
		if cfg.AutoMigrate {
			prepare = func(reg *schema.Registry) error { return gormstore.Migrate(ctx, db, reg) }
		}
	}

	// 1. Загружаем схему
	reg, err := load(cfg.DSLDir, cfg.FormsDir)
	if err != nil {
		log.Fatalf("Ошибка загрузки схемы: %v", err)
	}
	log.Printf("Загружено сущностей: %d", len(reg.Entities()))

	// 2. Проверяем настройки полей
	if issues := api.Lint(reg, compose.NewKit()); len(issues) > 0 {
		for _, is := range issues {
			log.Printf("[lint] %s.%s: %s: %s", is.Entity, is.Field, is.Code, is.Message)
		}
		log.Fatalf("Схема содержит ошибки: %d", len(issues))
	}

	// 3. Таблицы
	if prepare != nil {
		if err := prepare(reg); err != nil {
			log.Fatalf("Ошибка миграции: %v", err)
		}
	}

	app := api.NewApp(backend, reg)
	app.Load = load
	app.DSLRoot = cfg.DSLDir
	app.FormsDir = cfg.FormsDir
	app.Prepare = prepare

	log.Printf("Стартуем сервер autoform на :%s (%s)...", cfg.Port, kind)
	if err := api.RunServer(":"+cfg.Port, app); err != nil {
		log.Fatal(err)
	}
}

// introspect — Loader, читающий таблицы из базы; dslRoot игнорируется.
func introspect(db *sql.DB, cfg config.Config) api.Loader {
	return func(_, formsDir string) (*schema.Registry, error) {
		reg := schema.NewRegistry()
		if err := pgstore.Introspect(context.Background(), db, reg, cfg.Module, cfg.DBSchema); err != nil {
			return nil, err
		}
		ovs, err := fieldconf.LoadDir(formsDir)
		if err != nil {
			return nil, err
		}
		if err := fieldconf.Apply(reg, ovs); err != nil {
			return nil, err
		}
		if err := reg.Finalize(); err != nil {
			return nil, err
		}
		return reg, nil
	}
}
