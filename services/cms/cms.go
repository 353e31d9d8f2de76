package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	_ "github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/backend"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
	"github.com/relabs-tech/kurbisio-cms/core/notify"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	PostgresSchema   string `env:"POSTGRES_SCHEMA,default=cms" description:"the schema holding catalog and content tables"`
	Port             int    `env:"PORT,default=3000" description:"the HTTP port"`
	LogLevel         string `env:"LOG_LEVEL,default=info" description:"the log level: debug, info, warn or error"`
	JWTSecret        string `env:"JWT_SECRET,optional" description:"the HS256 secret of bearer tokens, enables authorization"`
	KafkaBrokers     string `env:"KAFKA_BROKERS,optional" description:"comma separated Kafka brokers, enables content events"`
	KafkaTopic       string `env:"KAFKA_TOPIC,default=content_notification" description:"the topic of content events"`
	CORS             bool   `env:"CORS,default=true" description:"answer with CORS headers"`
	CORSOrigins      string `env:"CORS_ORIGINS,optional" description:"comma separated allowed origins, all if empty"`
	StrictFilters    bool   `env:"STRICT_FILTERS,default=false" description:"reject unknown filter operators"`
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(service.LogLevel))
	rlog := logger.Default()

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.PostgresSchema)
	defer db.Close()

	var notifier core.Notifier
	if service.KafkaBrokers != "" {
		kafka := notify.NewKafka(service.KafkaBrokers, service.KafkaTopic)
		defer kafka.Close()
		notifier = kafka
		rlog.Infof("content events go to kafka topic %s", kafka.Topic())
	}

	router := mux.NewRouter()
	backend.New(&backend.Builder{
		DB:            db,
		Router:        router,
		Notifier:      notifier,
		JWTSecret:     []byte(service.JWTSecret),
		StrictFilters: service.StrictFilters,
		CORS:          service.CORS,
		CORSOrigins:   splitList(service.CORSOrigins),
	})
	if service.JWTSecret == "" {
		rlog.Warnln("JWT_SECRET is not set, requests are not authorized")
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		rlog.Infoln("listen on port", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rlog.WithError(err).Fatalln("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		rlog.WithError(err).Errorln("shutdown")
	}
}
