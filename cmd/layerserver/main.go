package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/osmedit/tilesource/pkg/fetch"
	"github.com/osmedit/tilesource/pkg/index"
	"github.com/osmedit/tilesource/pkg/model"
	"github.com/osmedit/tilesource/pkg/registry"
	"github.com/osmedit/tilesource/pkg/storage"
)

type AppConfig struct {
	Addr       string   `yaml:"addr"`
	DBPath     string   `yaml:"db"`
	Blacklist  []string `yaml:"blacklist"`
	ImageryURL string   `yaml:"imageryUrl"`
	ImageryELI bool     `yaml:"eli"`
	CustomFile string   `yaml:"customFile"`
	Culture    string   `yaml:"culture"`
}

type App struct {
	conf     *AppConfig
	logger   *slog.Logger
	db       *storage.Database
	registry *registry.Registry
	fetcher  *fetch.Client
}

func NewApp(conf *AppConfig, logger *slog.Logger) (*App, error) {
	db, err := storage.Open(conf.DBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureBuiltins(); err != nil {
		db.Close()
		return nil, err
	}

	app := &App{
		conf:    conf,
		logger:  logger,
		db:      db,
		fetcher: fetch.New(time.Second*10, time.Second*30, fetch.WithRateLimit(5, 5)),
	}

	catalog := storage.NewCatalog(db, model.Config{
		Fetcher: app.fetcher,
		Logger:  logger,
		Async:   true,
		Culture: conf.Culture,
	})
	app.registry = registry.New(catalog, logger)
	app.registry.SetBlacklist(conf.Blacklist)
	return app, nil
}

func (app *App) Run() {
	if app.conf.CustomFile != "" {
		if err := index.SyncCustomFile(app.db, app.conf.CustomFile, app.logger); err != nil {
			app.logger.Error("custom layer import failed", slog.Any("error", err))
		}
	}

	if err := app.registry.Initialize(true); err != nil {
		panic(err)
	}

	http := NewHttp(app)

	app.logger.Info("listening on " + app.conf.Addr)

	go func() {
		if err := http.Listen(app.conf.Addr); err != nil {
			panic(err)
		}
	}()

	if app.conf.CustomFile != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			panic(err)
		}
		defer watcher.Close()

		go app.watch(watcher)

		if err := watcher.Add(app.conf.CustomFile); err != nil {
			app.logger.Error("cannot watch custom layer file", slog.Any("error", err))
		}
	}

	app.loop()
}

// updateImagery replaces the imagery index derived layers and re-populates
// the registry.
func (app *App) updateImagery(ctx context.Context) error {
	tag := model.SourceJOSMImagery
	if app.conf.ImageryELI {
		tag = model.SourceELI
	}
	if err := index.Update(ctx, app.fetcher, app.db, app.conf.ImageryURL, tag, app.logger); err != nil {
		return err
	}
	app.registry.Reset()
	return app.registry.Initialize(true)
}

func (app *App) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			app.logger.Info("custom layer file changed: " + event.Name)
			if err := index.SyncCustomFile(app.db, app.conf.CustomFile, app.logger); err != nil {
				app.logger.Error("custom layer import failed", slog.Any("error", err))
				continue
			}
			app.registry.Reset()
			if err := app.registry.Initialize(true); err != nil {
				app.logger.Error("registry reload failed", slog.Any("error", err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			app.logger.Error("watcher error", slog.Any("error", err))
		}
	}
}

func (app *App) loop() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	<-sigc
	app.db.Close()
}

func loadConfig(path string) (*AppConfig, error) {
	conf := &AppConfig{
		Addr:       ":8888",
		DBPath:     "layers.db",
		ImageryURL: "https://josm.openstreetmap.de/maps?format=geojson",
		Culture:    "en-us",
	}
	d, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(d, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func main() {
	var confPath = flag.String("config", "layerserver.yml", "config file")
	var update = flag.Bool("update", false, "download the imagery index and exit")
	var debug = flag.Bool("debug", false, "")

	flag.Parse()

	var h slog.Handler
	if *debug {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(h))

	conf, err := loadConfig(*confPath)
	if err != nil {
		panic(err)
	}

	app, err := NewApp(conf, slog.Default())
	if err != nil {
		panic(err)
	}

	if *update {
		if err := app.updateImagery(context.Background()); err != nil {
			app.logger.Error("imagery update failed", slog.Any("error", err))
			os.Exit(1)
		}
		app.db.Close()
		return
	}

	app.Run()
}
