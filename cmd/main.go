package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/clients/redis"
	"github.com/algobrain/threatgraph-backend/internal/data/graph"
	"github.com/algobrain/threatgraph-backend/internal/enrich"
	"github.com/algobrain/threatgraph-backend/internal/handlers"
	"github.com/algobrain/threatgraph-backend/internal/ingest"
	"github.com/algobrain/threatgraph-backend/internal/mapping"
	"github.com/algobrain/threatgraph-backend/internal/ontology"
	"github.com/algobrain/threatgraph-backend/internal/platform/envutil"
	"github.com/algobrain/threatgraph-backend/internal/platform/gcs"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/platform/neo4jdb"
	"github.com/algobrain/threatgraph-backend/internal/platform/qdrant"
	"github.com/algobrain/threatgraph-backend/internal/platform/vector"
	"github.com/algobrain/threatgraph-backend/internal/resolve"
	"github.com/algobrain/threatgraph-backend/internal/search"
	"github.com/algobrain/threatgraph-backend/internal/server"
	"github.com/algobrain/threatgraph-backend/internal/workers"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Neo4j
	log.Info("Setting up graph store from main...")
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init Neo4j client", "error", err)
		os.Exit(1)
	}
	var store graph.Store
	if neo4jClient != nil {
		store, err = graph.NewNeo4jStore(neo4jClient, log)
		if err != nil {
			log.Error("Could not init Neo4j graph store", "error", err)
			os.Exit(1)
		}
		defer neo4jClient.Close(context.Background())
	} else {
		log.Warn("NEO4J_URI not set; using in-memory graph store")
		store = graph.NewMemoryStore()
	}

	// Redis event stream
	log.Info("Setting up event bus from main...")
	var bus redis.EventBus
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = redis.NewEventBus(log)
		if err != nil {
			log.Error("Could not init Redis event bus", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
	} else {
		log.Warn("REDIS_ADDR not set; using in-process event bus")
		memBus := redis.NewMemoryBus(log)
		defer memBus.Close()
		bus = memBus
	}

	// Raw archive (optional)
	rawArchive, err := gcs.NewRawArchiveFromEnv(log)
	if err != nil {
		log.Warn("Could not init raw payload archive", "error", err)
	}
	var rawStore ingest.RawStore
	if rawArchive != nil {
		rawStore = rawArchive
		defer rawArchive.Close()
	}

	// Ontology check (optional)
	if path := os.Getenv("ONTOLOGY_PATH"); path != "" {
		ont, err := ontology.Load(path)
		if err != nil {
			log.Warn("Could not load ontology listing", "error", err)
		} else {
			missing := ont.MissingClasses(mapping.Builtin().Labels())
			log.Info("ontology loaded",
				"classes", ont.ClassCount(),
				"properties", ont.PropertyCount(),
				"unmapped_labels", len(missing),
			)
		}
	}

	// Pipeline
	log.Info("Setting up ingestion pipeline from main...")
	cfg := ingest.ConfigFromEnv()
	mapper := mapping.New()
	resolver := resolve.New(log, cfg.Resolver)
	orchestrator := ingest.NewOrchestrator(log, cfg, mapper, resolver, store, bus, rawStore)
	if envutil.Bool("ENRICH_CATEGORIES", true) {
		orchestrator.UseClassifier(enrich.NewClassifier())
	}

	// Downstream workers
	log.Info("Setting up workers from main...")
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var group []workers.Worker
	embedder := workers.NewLocalEmbedder(envutil.Int("EMBED_DIM", 256))
	if qdrantCfg, cfgErr := qdrant.ResolveConfigFromEnv(); cfgErr == nil {
		var vectorStore vector.Store
		vectorStore, err = qdrant.NewVectorStore(log, qdrantCfg)
		if err != nil {
			log.Warn("Could not init Qdrant vector store", "error", err)
		} else {
			group = append(group, workers.NewVectorizer(log, bus, vectorStore, embedder, os.Getenv("WORKER_CONSUMER")))
		}
	} else {
		log.Warn("Vectorization disabled", "reason", cfgErr)
	}
	searchIndex, err := search.NewHTTPIndexFromEnv(log)
	if err != nil {
		log.Warn("Could not init search index", "error", err)
	}
	if searchIndex != nil {
		group = append(group, workers.NewIndexer(log, bus, searchIndex, os.Getenv("WORKER_CONSUMER")))
	}
	group = append(group, workers.NewMonitor(log, orchestrator.Stats, time.Duration(envutil.Int("MONITOR_INTERVAL_SEC", 30))*time.Second))

	go func() {
		if err := workers.RunGroup(workerCtx, log, group...); err != nil {
			log.Warn("worker group exited", "error", err)
		}
	}()

	// Handlers
	log.Info("Setting up handlers from main...")
	ingestHandler := handlers.NewIngestHandler(log, orchestrator)
	statsHandler := handlers.NewStatsHandler(log, orchestrator)
	crossRefHandler := handlers.NewCrossRefHandler(log, orchestrator)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		IngestHandler:   ingestHandler,
		StatsHandler:    statsHandler,
		CrossRefHandler: crossRefHandler,
	})

	port := envutil.Str("PORT", "8080")
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
