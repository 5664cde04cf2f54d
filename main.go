package main

import (
	"context"
	"flag"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ingenico/config"
	"ingenico/internal"
	"ingenico/services"
)

func main() {

	logger := internal.NewLogger("internal", false, nil)

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	logger.Info("using config file: " + *configPath)
	conf, err := config.GetConfig(*configPath)
	if err != nil {
		logger.Error("boot", err)
		return
	}

	level := conf.Log.Level
	if conf.IsDebug {
		level = "debug"
	}
	if err = internal.InitLogging(level, conf.Log.Format, conf.Log.Output); err != nil {
		logger.Error("init logging", err)
		return
	}
	logger = internal.NewLogger("internal", conf.IsDebug, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var database services.Database = internal.NewMemoryDB()
	var logDatabase services.Database
	if conf.Mongo.Enabled {
		mongo, err := internal.NewMongoClient(ctx, conf)
		if err != nil {
			logger.Error("mongo client", err)
			return
		}
		defer func() {
			_ = mongo.Close(context.Background())
		}()
		database = mongo
		logDatabase = mongo
		logger.Info("mongo client initialized")
	} else {
		logger.Warn("mongo disabled: payments are kept in memory")
	}

	payments := internal.NewPayments(conf)
	payments.SetLogger(internal.NewLogger("payments", conf.IsDebug, logDatabase))
	payments.SetDatabase(database)
	payments.SetMetrics(internal.NewMetrics(prometheus.DefaultRegisterer))

	if conf.Redis.Enabled {
		locker, err := internal.NewRedisLocker(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB, conf.Redis.LockTTL)
		if err != nil {
			logger.Error("redis locker", err)
			return
		}
		defer func() {
			_ = locker.Close()
		}()
		payments.SetLocker(locker)
		logger.Info("redis locker initialized")
	}

	if conf.Rabbit.Enabled {
		publisher, err := internal.NewRabbitPublisher(conf.Rabbit.Url, conf.Rabbit.Exchange)
		if err != nil {
			logger.Error("rabbitmq publisher", err)
			return
		}
		defer func() {
			_ = publisher.Close()
		}()
		payments.SetPublisher(publisher)
		logger.Info("rabbitmq publisher initialized")
	}

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, logDatabase))
	server.SetPaymentsService(payments)
	server.SetDirectLinkService(internal.NewDirectLink(payments))
	server.SetECommerceService(internal.NewECommerce(payments))

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
		return
	}

}
